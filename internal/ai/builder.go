package ai

import (
	"fmt"
	"strings"

	"github.com/xxxsen/proposal/internal/config"
)

// Build turns the provider and model declarations into the chat generator
// and embedder used by the pipeline. Each model ref gets its own breaker and
// the chat refs fall back in order.
func Build(cfg config.AIConfig) (IGenerator, IEmbedder, error) {
	chatProviders := make(map[string]IAIProvider, len(cfg.Providers))
	embedProviders := make(map[string]IEmbedProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		name := strings.TrimSpace(pc.Name)
		chatOK, embedOK := hasFactory(pc.Type)
		if !chatOK && !embedOK {
			return nil, nil, fmt.Errorf("init ai provider %s: unsupported type %s", name, pc.Type)
		}
		if chatOK {
			p, err := NewProvider(pc.Type, pc.Data)
			if err != nil {
				return nil, nil, fmt.Errorf("init ai provider %s: %w", name, err)
			}
			chatProviders[name] = p
		}
		if embedOK {
			p, err := NewEmbedProvider(pc.Type, pc.Data)
			if err != nil {
				return nil, nil, fmt.Errorf("init ai provider %s: %w", name, err)
			}
			embedProviders[name] = p
		}
	}

	gens := make([]GeneratorEntry, 0, len(cfg.Chat))
	for _, ref := range cfg.Chat {
		p := chatProviders[ref.Provider]
		if p == nil {
			return nil, nil, fmt.Errorf("chat model %s: provider %s does not support chat", ref.Model, ref.Provider)
		}
		label := ref.Provider + "/" + ref.Model
		gens = append(gens, GeneratorEntry{
			Name:      label,
			Generator: NewBreakerGenerator("chat:"+label, NewGenerator(p, ref.Model), cfg.Breaker),
		})
	}
	gen := NewGroupGenerator(gens)
	if gen == nil {
		return nil, nil, fmt.Errorf("no chat model configured")
	}
	// Stored vectors share one column, so a single embed model is allowed.
	if len(cfg.Embed) != 1 {
		return nil, nil, fmt.Errorf("exactly one embed model is required, got %d", len(cfg.Embed))
	}
	ref := cfg.Embed[0]
	p := embedProviders[ref.Provider]
	if p == nil {
		return nil, nil, fmt.Errorf("embed model %s: provider %s does not support embeddings", ref.Model, ref.Provider)
	}
	var emb IEmbedder = NewBreakerEmbedder("embed:"+ref.Provider+"/"+ref.Model, NewEmbedder(p, ref.Model), cfg.Breaker)
	if cfg.EmbedDimension > 0 {
		emb = NewDimensionChecked(emb, cfg.EmbedDimension)
	}
	return gen, emb, nil
}
