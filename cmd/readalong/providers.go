package main

import (
	"context"
	"errors"

	"github.com/MrWong99/readalong/internal/config"
	"github.com/MrWong99/readalong/pkg/provider/stt"
	"github.com/MrWong99/readalong/pkg/provider/stt/deepgram"
	"github.com/MrWong99/readalong/pkg/provider/stt/googlespeech"
	"github.com/MrWong99/readalong/pkg/provider/stt/replay"
)

// registerBuiltinProviders registers every recognition provider compiled
// into the binary.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(_ context.Context, e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("google", func(ctx context.Context, e config.ProviderEntry) (stt.Provider, error) {
		return googlespeech.New(ctx, googlespeech.Config{
			ProjectID:       e.ProjectID,
			Location:        e.Location,
			Model:           e.Model,
			CredentialsJSON: e.CredentialsJSON,
		})
	})

	reg.RegisterSTT("replay", func(_ context.Context, e config.ProviderEntry) (stt.Provider, error) {
		if e.Script == "" {
			return nil, errors.New("replay: script path is required")
		}
		script, err := replay.Load(e.Script)
		if err != nil {
			return nil, err
		}
		return replay.New(script), nil
	})
}
