package llm

import "context"

// MockClient permite tests sin llamar a un LLM real: responde con un valor
// fijo y registra los prompts recibidos para poder afirmar sobre ellos.
type MockClient struct {
	Response string
	Err      error
	Prompts  []string
}

func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	return m.Response, m.Err
}
