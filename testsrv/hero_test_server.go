// Package testsrv provides real GraphQL servers for exercising links against
// something other than the mock backend.
package testsrv

import (
	"errors"
	"net/http/httptest"

	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

type character struct {
	IDField      string
	NameField    string
	EpisodeField string
}

func (c character) ID() graphql.ID {
	return graphql.ID(c.IDField)
}

func (c character) Name() string {
	return c.NameField
}

func (c character) Episode() string {
	return c.EpisodeField
}

var characters = []*character{
	{
		IDField:      "2000",
		NameField:    "C-3PO",
		EpisodeField: "NEWHOPE",
	},
	{
		IDField:      "2001",
		NameField:    "R2-D2",
		EpisodeField: "NEWHOPE",
	},
	{
		IDField:      "1000",
		NameField:    "Luke Skywalker",
		EpisodeField: "EMPIRE",
	},
}

var charactersMap = make(map[string]*character)

func init() {
	for _, c := range characters {
		charactersMap[c.IDField] = c
	}
}

type heroServiceResolver struct{}

func (r *heroServiceResolver) Hero(args struct{ Episode *string }) *character {
	if args.Episode != nil && *args.Episode == "EMPIRE" {
		return charactersMap["1000"]
	}
	return charactersMap["2001"]
}

func (r *heroServiceResolver) Character(args struct{ ID graphql.ID }) (*character, error) {
	c, ok := charactersMap[string(args.ID)]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (r *heroServiceResolver) Characters() []*character {
	return characters
}

// HeroSchema is the schema served by NewHeroService.
const HeroSchema = `
	enum Episode {
		NEWHOPE
		EMPIRE
		JEDI
	}

	type Query {
		hero(episode: Episode): Character!
		character(id: ID!): Character
		characters: [Character!]!
	}

	type Character {
		id: ID!
		name: String!
		episode: Episode!
	}`

// NewHeroService starts a GraphQL server answering hero queries.
func NewHeroService() *httptest.Server {
	schema := graphql.MustParseSchema(HeroSchema, &heroServiceResolver{}, graphql.UseFieldResolvers())
	return httptest.NewServer(&relay.Handler{Schema: schema})
}
