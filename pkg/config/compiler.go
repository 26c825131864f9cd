package config

import (
	"fmt"
	"strings"

	"github.com/a-essam23/go-pulse/pkg/pipeline"
)

type ModifierFuncProvider func(name string) (pipeline.ModifierFunc, bool)

// CompilePipelines resolves every configured modifier name into an executable step.
// Keys are lower-cased since viper folds map keys; use PipelineFor to read them.
func CompilePipelines(cfg *Config, provider ModifierFuncProvider) error {
	cfg.Pipelines = make(map[string][]pipeline.Step, len(cfg.Events))
	for eventName, eventCfg := range cfg.Events {
		pipe := make([]pipeline.Step, 0, len(eventCfg.Modifiers))
		for _, modCfg := range eventCfg.Modifiers {
			// look up the Go function for this modifier name.
			fn, ok := provider(modCfg.Name)
			if !ok {
				return fmt.Errorf("unknown modifier '%s' in event '%s'", modCfg.Name, eventName)
			}
			pipe = append(pipe, pipeline.Step{
				Name:     modCfg.Name,
				Function: fn,
				Params:   modCfg.Params,
			})
		}
		cfg.Pipelines[strings.ToLower(eventName)] = pipe
	}
	return nil
}

func (c *Config) PipelineFor(eventName string) []pipeline.Step {
	return c.Pipelines[strings.ToLower(eventName)]
}
