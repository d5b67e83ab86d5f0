// Package idgen mints prefixed nanoid identifiers, one convention per
// entity kind.
package idgen

import gonanoid "github.com/matoous/go-nanoid/v2"

const (
	PrefixConversation = "conv"
	PrefixMessage      = "msg"
)

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(21)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

func (g *Generator) NewConversationID() string {
	return g.generate(PrefixConversation)
}

func (g *Generator) NewMessageID() string {
	return g.generate(PrefixMessage)
}
