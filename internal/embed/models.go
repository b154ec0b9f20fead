package embed

import "fmt"

// ModelInfo describes a known embedding model.
type ModelInfo struct {
	Name       string
	Provider   string
	Dimensions int
	// Shortenable models accept a smaller dimensions request
	Shortenable bool
}

var knownModels = []ModelInfo{
	{Name: "text-embedding-3-small", Provider: "openai", Dimensions: 1536, Shortenable: true},
	{Name: "text-embedding-3-large", Provider: "openai", Dimensions: 3072, Shortenable: true},
	{Name: "text-embedding-ada-002", Provider: "openai", Dimensions: 1536},
	{Name: "nomic-embed-text", Provider: "ollama", Dimensions: 768},
	{Name: "mxbai-embed-large", Provider: "ollama", Dimensions: 1024},
	{Name: "all-minilm", Provider: "ollama", Dimensions: 384},
}

// LookupModel returns the known model with the given name.
func LookupModel(name string) (ModelInfo, bool) {
	for _, m := range knownModels {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// CheckModelDimensions reports a configured dimension count the model can
// never produce. Unknown models are not checked.
func CheckModelDimensions(model string, dims int) error {
	info, ok := LookupModel(model)
	if !ok {
		return nil
	}
	if dims == info.Dimensions || (info.Shortenable && dims > 0 && dims < info.Dimensions) {
		return nil
	}
	return fmt.Errorf("%w: model %s produces %d dimensions, configured %d", ErrDimensionMismatch, model, info.Dimensions, dims)
}
