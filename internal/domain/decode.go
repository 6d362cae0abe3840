package domain

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Decode converts an opaque map — a Task's Context, a Step's Results, or a
// TransitionRecord's Metadata — into a typed struct tagged with
// `mapstructure`, so a StepHandler can work with a typed view instead of
// hand-rolling type assertions against map[string]any.
func Decode(source map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return fmt.Errorf("domain: build decoder: %w", err)
	}
	if err := decoder.Decode(source); err != nil {
		return fmt.Errorf("domain: decode: %w", err)
	}
	return nil
}
