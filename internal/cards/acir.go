package cards

import (
	"encoding/json"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// acCard is the subset of the Adaptive Card schema the gateway
// understands. Unknown body and action types are skipped, not
// rejected: the verbatim payload still reaches premium platforms.
type acCard struct {
	Type    string      `json:"type"`
	Version string      `json:"version"`
	Body    []acElement `json:"body"`
	Actions []acAction  `json:"actions"`
}

type acElement struct {
	Type       string     `json:"type"`
	Text       string     `json:"text"`
	Weight     string     `json:"weight"`
	URL        string     `json:"url"`
	AltText    string     `json:"altText"`
	Facts      []acFact   `json:"facts"`
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	IsRequired bool       `json:"isRequired"`
	Choices    []acChoice `json:"choices"`
}

type acFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type acChoice struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type acAction struct {
	Type  string          `json:"type"`
	Title string          `json:"title"`
	URL   string          `json:"url"`
	Data  json.RawMessage `json:"data"`
}

// ACToIR lowers a raw Adaptive Card into the neutral IR so basic and
// advanced platforms can approximate it. The caller keeps the raw
// payload in Meta.AdaptivePayload for premium passthrough.
func ACToIR(raw json.RawMessage) (*IR, error) {
	var card acCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, &core.DomainError{Code: core.ErrorCodeValidation, Message: "adaptive card is not valid JSON", Err: err}
	}
	if card.Type != "" && card.Type != "AdaptiveCard" {
		return nil, &core.DomainError{Code: core.ErrorCodeValidation, Message: "payload is not an AdaptiveCard"}
	}

	ir := &IR{}
	for i, el := range card.Body {
		switch el.Type {
		case "TextBlock":
			if i == 0 && el.Weight == "Bolder" && ir.Head.Title == "" {
				ir.Head.Title = el.Text
				continue
			}
			ir.Elements = append(ir.Elements, Element{Type: ElementText, Text: el.Text, Markdown: true})
		case "Image":
			ir.Elements = append(ir.Elements, Element{Type: ElementImage, URL: el.URL, Alt: el.AltText})
		case "FactSet":
			facts := make([]Fact, 0, len(el.Facts))
			for _, f := range el.Facts {
				facts = append(facts, Fact{Label: f.Title, Value: f.Value})
			}
			ir.Elements = append(ir.Elements, Element{Type: ElementFactSet, Facts: facts})
		case "Input.Text":
			ir.Elements = append(ir.Elements, Element{
				Type:     ElementInput,
				Kind:     InputText,
				ID:       el.ID,
				Label:    el.Label,
				Required: el.IsRequired,
			})
		case "Input.ChoiceSet":
			choices := make([]InputChoice, 0, len(el.Choices))
			for _, c := range el.Choices {
				choices = append(choices, InputChoice{Title: c.Title, Value: c.Value})
			}
			ir.Elements = append(ir.Elements, Element{
				Type:    ElementInput,
				Kind:    InputChoiceKind,
				ID:      el.ID,
				Label:   el.Label,
				Choices: choices,
			})
		}
	}

	for _, a := range card.Actions {
		switch a.Type {
		case "Action.OpenUrl":
			ir.Actions = append(ir.Actions, Action{Type: ActionOpenURL, Title: a.Title, URL: a.URL})
		case "Action.Submit":
			var data map[string]any
			if len(a.Data) > 0 {
				_ = json.Unmarshal(a.Data, &data)
			}
			ir.Actions = append(ir.Actions, Action{Type: ActionPostback, Title: a.Title, Data: data})
		case "Action.Execute":
			ir.Meta.Capabilities = append(ir.Meta.Capabilities, "execute")
		case "Action.ShowCard":
			ir.Meta.Capabilities = append(ir.Meta.Capabilities, "showcard")
		}
	}
	if ir.HasInputs() {
		ir.Meta.Capabilities = append(ir.Meta.Capabilities, "inputs")
	}

	ir.AutoTier()
	return ir, nil
}
