package feed

// demoOverviews is shown while the engine is still starting, so the
// dashboard has something to render before any model exists.
var demoOverviews = []Update{
	{
		"source":      "satori",
		"author":      "demo",
		"stream":      "coinbaseBTC-USD",
		"target":      "price",
		"subscribers": 3,
		"accuracy":    "97.1",
		"prediction":  "68412.20",
		"value":       "68390.05",
		"values":      []string{"68210.40", "68302.77", "68390.05"},
		"predictions": []string{"68250.00", "68344.10", "68412.20"},
	},
	{
		"source":      "satori",
		"author":      "demo",
		"stream":      "weatherUTAH",
		"target":      "temperature",
		"subscribers": 1,
		"accuracy":    "88.4",
		"prediction":  "71.3",
		"value":       "70.9",
		"values":      []string{"69.8", "70.4", "70.9"},
		"predictions": []string{"70.1", "70.8", "71.3"},
	},
}

// DemoPlaceholder returns the single frame sent on a cold start, when the
// engine has not announced any models yet.
func DemoPlaceholder() Envelope {
	env, err := EncodeValue(demoOverviews)
	if err != nil {
		// demoOverviews only holds strings and ints.
		panic(err)
	}
	return env
}

// EmptyPlaceholder returns the single frame sent when the engine is running
// but has no models registered.
func EmptyPlaceholder() Envelope {
	return Envelope{data: []byte("[]")}
}
