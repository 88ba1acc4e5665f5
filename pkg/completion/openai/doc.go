// Package openai provides an eino chat model for OpenAI-compatible chat
// completion endpoints.
//
// # Usage
//
//	m, err := openai.NewChatModel(openai.Config{
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Model:   "gpt-4o-mini",
//	}, logger)
//	client, err := completion.NewClient(m, completion.Config{SystemPrompt: prompt}, logger)
package openai
