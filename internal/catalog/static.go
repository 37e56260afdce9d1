package catalog

// builtinModels is the static fallback table served when the backing store
// is unreachable. Cost and CO2 are left at zero: cost comparisons degrade
// to "no savings computable" instead of crashing the selection pipeline.
func builtinModels() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ModelID:         "gemma-7b-it",
			Name:            "Gemma 7B",
			Provider:        ProviderGroq,
			ComplexityLevel: 2,
			TaskType:        "general",
		},
		{
			ModelID:         "llama-3.1-8b-instant",
			Name:            "Llama 3.1 8B Instant",
			Provider:        ProviderGroq,
			ComplexityLevel: 3,
			TaskType:        "general",
		},
		{
			ModelID:         "gpt-3.5-turbo",
			Name:            "GPT-3.5 Turbo",
			Provider:        ProviderOpenAI,
			ComplexityLevel: 4,
			TaskType:        "general",
		},
		{
			ModelID:         "claude-3-5-haiku-20241022",
			Name:            "Claude 3.5 Haiku",
			Provider:        ProviderAnthropic,
			ComplexityLevel: 5,
			TaskType:        "general",
		},
		{
			ModelID:         "gpt-4o-mini",
			Name:            "GPT-4o Mini",
			Provider:        ProviderOpenAI,
			ComplexityLevel: 6,
			TaskType:        "general",
		},
		{
			ModelID:         "mixtral-8x7b-32768",
			Name:            "Mixtral 8x7B",
			Provider:        ProviderGroq,
			ComplexityLevel: 6,
			TaskType:        "general",
		},
		{
			ModelID:         "llama-3.1-70b-versatile",
			Name:            "Llama 3.1 70B",
			Provider:        ProviderGroq,
			ComplexityLevel: 7,
			TaskType:        "general",
		},
		{
			ModelID:         "gpt-4-turbo",
			Name:            "GPT-4 Turbo",
			Provider:        ProviderOpenAI,
			ComplexityLevel: 8,
			TaskType:        "general",
		},
		{
			ModelID:         "claude-3-5-sonnet-20241022",
			Name:            "Claude 3.5 Sonnet",
			Provider:        ProviderAnthropic,
			ComplexityLevel: 9,
			TaskType:        "general",
		},
		{
			ModelID:         "gpt-4o",
			Name:            "GPT-4o",
			Provider:        ProviderOpenAI,
			ComplexityLevel: 9,
			TaskType:        "general",
		},
		{
			ModelID:         "claude-3-opus-20240229",
			Name:            "Claude 3 Opus",
			Provider:        ProviderAnthropic,
			ComplexityLevel: 10,
			TaskType:        "general",
		},
	}
}
