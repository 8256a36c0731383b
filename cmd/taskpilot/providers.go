package main

// Provider blank imports: each import activates a self-registering adapter.
// Add new issue sources and notifiers here as they are implemented.

import (
	_ "github.com/Strob0t/TaskPilot/internal/adapter/discord"
	_ "github.com/Strob0t/TaskPilot/internal/adapter/github"
	_ "github.com/Strob0t/TaskPilot/internal/adapter/jira"
	_ "github.com/Strob0t/TaskPilot/internal/adapter/slack"
)
