package domain

import (
	"encoding/json"
	"strings"
)

// Sections is a section segmentation produced by the extraction stage. It is
// forwarded to the AI stage byte for byte, so it stays raw.
type Sections json.RawMessage

func (s Sections) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(s).MarshalJSON()
}

func (s *Sections) UnmarshalJSON(data []byte) error {
	*s = append((*s)[:0], data...)
	return nil
}

func (s Sections) IsEmpty() bool {
	trimmed := strings.TrimSpace(string(s))
	switch trimmed {
	case "", "null", "{}", "[]":
		return true
	default:
		return false
	}
}

// Facts returns the "fatos" section, or "" when absent or not decodable.
func (s Sections) Facts() string {
	if s.IsEmpty() {
		return ""
	}
	var view struct {
		Facts string `json:"fatos"`
	}
	if err := json.Unmarshal(s, &view); err != nil {
		return ""
	}
	return strings.TrimSpace(view.Facts)
}

type SubjectEntry struct {
	Code        string `json:"codigo"`
	Description string `json:"descricao"`
	Principal   string `json:"principal"`
}

type PartyRepresentatives struct {
	Plaintiff  []string `json:"autor"`
	Defendant  []string `json:"acusado"`
	Prosecutor []string `json:"mp"`
}

// PreprocessingResult is the extraction-stage output shown for review before
// anything is sent to the AI stage.
type PreprocessingResult struct {
	ExtractedText        string               `json:"textoExtraido"`
	ExtractionMethod     string               `json:"metodoExtracao,omitempty"`
	Sections             Sections             `json:"secoes"`
	SectionsNLP          Sections             `json:"secoesNLP"`
	Subjects             []SubjectEntry       `json:"assuntos"`
	PartyRepresentatives PartyRepresentatives `json:"partesRepresentantes"`
	AdditionalInfo       map[string]string    `json:"informacoesAdicionais"`
	Page2Image           string               `json:"imagemPagina2,omitempty"`
	Prompt               string               `json:"prompt"`
	Page2TablesRaw       json.RawMessage      `json:"tabelasPagina2Raw,omitempty"`
}

// AIPayload is the fixed request body of the AI stage.
type AIPayload struct {
	Prompt     string   `json:"prompt"`
	Sections   Sections `json:"secoes"`
	Page2Image *string  `json:"imagemPagina2"`
}

func (p *PreprocessingResult) AIPayload() AIPayload {
	payload := AIPayload{
		Prompt:   p.Prompt,
		Sections: p.Sections,
	}
	if strings.TrimSpace(p.Page2Image) != "" {
		image := p.Page2Image
		payload.Page2Image = &image
	}
	return payload
}

type Party struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type Subject struct {
	Description string `json:"description"`
}

// The AI stage echoes regex sections verbatim, so parties and subjects may
// arrive as bare strings instead of objects.

func (p *Party) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*p = Party{Name: name}
		return nil
	}
	type plain Party
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*p = Party(out)
	return nil
}

func (s *Subject) UnmarshalJSON(data []byte) error {
	var description string
	if err := json.Unmarshal(data, &description); err == nil {
		*s = Subject{Description: description}
		return nil
	}
	type plain Subject
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*s = Subject(out)
	return nil
}

// StageCost is the token and USD accounting of one AI stage. Error is set
// instead of the counters when the stage failed.
type StageCost struct {
	Kind             string  `json:"tipo,omitempty"`
	ImageKB          float64 `json:"imagem_kb,omitempty"`
	ImageBytes       int64   `json:"imagem_bytes,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	InputCostUSD     float64 `json:"custo_entrada_usd,omitempty"`
	OutputCostUSD    float64 `json:"custo_saida_usd,omitempty"`
	TotalCostUSD     float64 `json:"custo_total_usd,omitempty"`
	Error            string  `json:"erro,omitempty"`
}

func (c *StageCost) Available() bool {
	return c != nil && c.Error == "" && c.TotalTokens > 0
}

type CostReport struct {
	Text        *StageCost `json:"texto,omitempty"`
	Image       *StageCost `json:"imagem,omitempty"`
	TotalUSD    float64    `json:"custo_total_ia_usd,omitempty"`
	LegacyTotal float64    `json:"custo_total_usd,omitempty"`
}

// Total prefers the aggregate field and falls back to the older one.
func (c *CostReport) Total() float64 {
	if c == nil {
		return 0
	}
	if c.TotalUSD != 0 {
		return c.TotalUSD
	}
	return c.LegacyTotal
}

// ProcessingResult is one snapshot of the AI-stage output. Image analysis is
// filled in by the service after the rest of the document exists.
type ProcessingResult struct {
	FactsSummary  string      `json:"resumo_fatos"`
	Parties       []Party     `json:"partes"`
	Subjects      []Subject   `json:"assuntos"`
	ImageAnalysis string      `json:"analise_imagem_pagina2,omitempty"`
	Costs         *CostReport `json:"custos_ia,omitempty"`
	Page2Image    string      `json:"imagemPagina2,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (r *ProcessingResult) HasImageAnalysis() bool {
	return r != nil && strings.TrimSpace(r.ImageAnalysis) != ""
}

// Submission is what the AI stage answers synchronously.
type Submission struct {
	Result    *ProcessingResult
	ResultURL string
}
