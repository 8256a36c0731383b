package gitlab

import (
	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/port/issuesource"
)

func init() {
	issuesource.Register(sourceName, func(cfg project.SourceConfig, token string) (issuesource.Source, error) {
		return NewSource(cfg.BaseURL, token, cfg.ProjectRef), nil
	})
}
