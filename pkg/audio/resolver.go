// Package audio resolves the audio a MAKE_CALL node plays.
package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/journey/pkg/cache"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
)

var (
	// ErrNoAudioSource means the node configures no audio at all.
	ErrNoAudioSource = errors.New("no audio source configured")
	// ErrAudioUnavailable means generation or storage failed.
	ErrAudioUnavailable = errors.New("audio unavailable")
)

// Source kinds in precedence order.
const (
	SourcePregenerated = "pregenerated"
	SourceTemplate     = "voice_template"
	SourceFile         = "audio_file"
)

// Source is a playable reference for the telephony collaborator.
type Source struct {
	Ref    string
	Kind   string
	Cached bool
}

// Resolver picks an audio source and generates voice-template audio on demand.
type Resolver struct {
	logger    *slog.Logger
	templates protocol.TemplateRenderer
	tts       protocol.AudioRenderer
	store     protocol.AudioStore
	refs      *cache.Cache[string]
}

func NewResolver(
	logger *slog.Logger,
	templates protocol.TemplateRenderer,
	tts protocol.AudioRenderer,
	store protocol.AudioStore,
	refs *cache.Cache[string],
) *Resolver {
	return &Resolver{
		logger:    logger.With("module", "audio_resolver"),
		templates: templates,
		tts:       tts,
		store:     store,
		refs:      refs,
	}
}

// Resolve returns the audio for a call: a pre-generated URL, then
// voice-template TTS, then a static file reference.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, cfg *models.MakeCallConfig, contact *models.Contact) (Source, error) {
	switch {
	case cfg.AudioURL != "":
		return Source{Ref: cfg.AudioURL, Kind: SourcePregenerated}, nil
	case cfg.VoiceTemplateID != "":
		return r.fromTemplate(ctx, tenantID, cfg, contact)
	case cfg.AudioFile != "":
		return Source{Ref: cfg.AudioFile, Kind: SourceFile}, nil
	default:
		return Source{}, ErrNoAudioSource
	}
}

func (r *Resolver) fromTemplate(ctx context.Context, tenantID string, cfg *models.MakeCallConfig, contact *models.Contact) (Source, error) {
	vars := Variables(contact)
	key := CacheKey(cfg.VoiceTemplateID, vars)

	if ref, ok := r.refs.Get(key); ok {
		return Source{Ref: ref, Kind: SourceTemplate, Cached: true}, nil
	}

	if r.store == nil || r.tts == nil || r.templates == nil {
		return Source{}, fmt.Errorf("%w: voice template audio is not configured", ErrAudioUnavailable)
	}

	ref, found, err := r.store.Get(ctx, key)
	if err != nil {
		return Source{}, fmt.Errorf("%w: audio store lookup: %w", ErrAudioUnavailable, err)
	}

	if found {
		r.refs.Set(key, ref)

		return Source{Ref: ref, Kind: SourceTemplate, Cached: true}, nil
	}

	text, err := r.templates.Render(ctx, tenantID, protocol.TemplateRef{ID: cfg.VoiceTemplateID, Kind: protocol.TemplateKindVoice}, vars)
	if err != nil {
		return Source{}, fmt.Errorf("%w: render voice template: %w", ErrAudioUnavailable, err)
	}

	rendered, err := r.tts.RenderAudio(ctx, text, cfg.Voice)
	if err != nil {
		return Source{}, fmt.Errorf("%w: text to speech: %w", ErrAudioUnavailable, err)
	}

	ref, err = r.store.Put(ctx, key, rendered.Data)
	if err != nil {
		return Source{}, fmt.Errorf("%w: store audio: %w", ErrAudioUnavailable, err)
	}

	r.refs.Set(key, ref)

	r.logger.InfoContext(ctx, "generated voice template audio",
		"template_id", cfg.VoiceTemplateID,
		"cache_key", key,
		"duration_seconds", rendered.DurationSeconds,
	)

	return Source{Ref: ref, Kind: SourceTemplate}, nil
}

// Variables is the substitution scope of a voice script. Identifiers are left
// out so contacts sharing a name share audio.
func Variables(contact *models.Contact) map[string]any {
	vars := map[string]any{}
	if contact == nil {
		return vars
	}

	for k, v := range contact.Attributes {
		switch v.(type) {
		case string, bool, int, int64, float64:
			vars[k] = v
		}
	}

	vars["firstName"] = contact.FirstName
	vars["lastName"] = contact.LastName
	vars["fullName"] = contact.FullName()

	return vars
}

// CacheKey addresses generated audio by template and normalized variable values.
func CacheKey(templateID string, vars map[string]any) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	h := sha256.New()
	h.Write([]byte(templateID))

	for _, k := range keys {
		fmt.Fprintf(h, "\n%s=%s", k, normalize(vars[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func normalize(v any) string {
	return strings.ToLower(strings.Join(strings.Fields(fmt.Sprint(v)), " "))
}
