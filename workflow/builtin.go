package workflow

// Builtin returns the descriptors for the stock conversation flows shipped
// with the examples, including their legacy aliases and configuration
// requirements. Applications register these with their own pattern
// factories; the descriptors alone are enough for readiness diagnostics.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:             "classification-agent",
			Aliases:          []string{"classification_agent", "classification"},
			RequiredConfig:   []string{"models.api_key", "models.model"},
			ExternalServices: []string{"model_provider"},
		},
		{
			Name:             "bike-insights",
			Aliases:          []string{"bike_insights"},
			RequiredConfig:   []string{"models.api_key", "models.model"},
			ExternalServices: []string{"model_provider"},
		},
		{
			Name:             "knowledge-base-agent",
			Aliases:          []string{"knowledge_base_agent", "knowledge-base"},
			RequiredConfig:   []string{"models.api_key", "models.model", "search.endpoint"},
			ExternalServices: []string{"model_provider", "search_service"},
		},
		{
			Name:             "sql-manipulation-agent",
			Aliases:          []string{"sql_manipulation_agent", "sql-agent"},
			RequiredConfig:   []string{"models.api_key", "models.model", "database.connection_string"},
			ExternalServices: []string{"model_provider", "database"},
		},
	}
}
