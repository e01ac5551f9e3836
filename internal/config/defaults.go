package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 60,
			Retries:        0,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Providers: map[string]ProviderConfig{
			"chatgpt": {Enabled: true},
			"claude":  {Enabled: true},
			"gemini":  {Enabled: true},
		},
		History: HistoryConfig{
			Enabled:       true,
			DBPath:        "~/.convograb/history.db",
			RetentionDays: 365,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
