package prompt

// Config is the system prompt and turn policy an upstream session is
// started with.
type Config struct {
	Prompt     string
	SpeakFirst bool
}

const (
	FlagDefault   = ""
	FlagKoreanEN  = "ko-en"
	FlagEnglishKO = "en-ko"
	FlagTutor     = "tutor"
	FlagConcierge = "concierge"
)

const defaultPrompt = "You are a fast simultaneous interpreter. Translate constantly. Do not wait for long context. Keep answers short and immediate."

var profiles = map[string]Config{
	FlagKoreanEN: {
		Prompt: "You are a simultaneous interpreter. The speaker talks in Korean. " +
			"Translate every utterance into natural English as soon as it is spoken. " +
			"Output only the translation.",
	},
	FlagEnglishKO: {
		Prompt: "You are a simultaneous interpreter. The speaker talks in English. " +
			"Translate every utterance into natural Korean as soon as it is spoken. " +
			"Output only the translation.",
	},
	FlagTutor: {
		Prompt: "You are a friendly Korean and English conversation tutor. " +
			"Open the lesson with a short greeting and a simple question, then keep the " +
			"conversation going and gently correct mistakes. Keep every turn brief.",
		SpeakFirst: true,
	},
	FlagConcierge: {
		Prompt: "You are a bilingual hotel concierge fluent in Korean and English. " +
			"Greet the guest first, answer in the language they use, and keep answers " +
			"short and helpful.",
		SpeakFirst: true,
	},
}

// Select maps a session flag to its prompt configuration. Unknown and empty
// flags get the default interpreter.
func Select(flag string) Config {
	if cfg, ok := profiles[flag]; ok {
		return cfg
	}
	return Config{Prompt: defaultPrompt}
}

// Flags lists the recognized non-default flags.
func Flags() []string {
	return []string{FlagKoreanEN, FlagEnglishKO, FlagTutor, FlagConcierge}
}
