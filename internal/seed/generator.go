package seed

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"anonfeed/internal/identity"
	"anonfeed/internal/models"
	"anonfeed/internal/service"
	"anonfeed/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
)

// Options sizes a generated data set.
type Options struct {
	Companies        int
	PeoplePerCompany int
	PostsPerCompany  int
	MaxComments      int
	MaxLikes         int
	// Seed makes content and structure reproducible. Zero picks a random seed.
	Seed int64
}

// Presets are named data-set sizes for cmd/seed.
var Presets = map[string]Options{
	"small": {Companies: 3, PeoplePerCompany: 4, PostsPerCompany: 5, MaxComments: 3, MaxLikes: 5},
	"busy":  {Companies: 12, PeoplePerCompany: 15, PostsPerCompany: 40, MaxComments: 12, MaxLikes: 30},
}

// Generator writes random company feeds through the feed services.
type Generator struct {
	posts    *service.PostService
	comments *service.CommentService
	faker    *gofakeit.Faker
	opts     Options
}

// NewGenerator creates a Generator. Non-positive sizes fall back to the "small" preset.
func NewGenerator(posts *service.PostService, comments *service.CommentService, opts Options) *Generator {
	small := Presets["small"]
	if opts.Companies <= 0 {
		opts.Companies = small.Companies
	}
	if opts.PeoplePerCompany <= 0 {
		opts.PeoplePerCompany = small.PeoplePerCompany
	}
	if opts.PostsPerCompany <= 0 {
		opts.PostsPerCompany = small.PostsPerCompany
	}
	return &Generator{
		posts:    posts,
		comments: comments,
		faker:    gofakeit.New(opts.Seed),
		opts:     opts,
	}
}

// Run creates the companies, their posts, and cross-company comments and likes.
func (g *Generator) Run(ctx context.Context) (Summary, error) {
	people, err := g.people()
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, company := range people {
		for i := 0; i < g.opts.PostsPerCompany; i++ {
			author := company[g.faker.Number(0, len(company)-1)]
			post, err := g.posts.CreatePost(ctx, service.CreatePostInput{
				Identity: author,
				Content:  g.content(),
			})
			if err != nil {
				return sum, fmt.Errorf("generate post: %w", err)
			}
			sum.Posts++

			for c := g.faker.Number(0, g.opts.MaxComments); c > 0; c-- {
				if _, err := g.comments.CreateComment(ctx, service.CreateCommentInput{
					PostID:   post.ID,
					Identity: g.anyone(people),
					Content:  g.content(),
				}); err != nil {
					return sum, fmt.Errorf("generate comment: %w", err)
				}
				sum.Comments++
			}

			likers := map[string]bool{}
			for l := g.faker.Number(0, g.opts.MaxLikes); l > 0; l-- {
				liker := g.anyone(people)
				// A second toggle by the same person would undo the first.
				if likers[liker.AnonymousID] {
					continue
				}
				likers[liker.AnonymousID] = true
				if _, err := g.posts.ToggleLike(ctx, post.ID, liker); err != nil {
					return sum, fmt.Errorf("generate like: %w", err)
				}
				sum.Likes++
			}
		}
	}
	return sum, nil
}

// people returns PeoplePerCompany identities for each of Companies distinct domains.
func (g *Generator) people() ([][]*models.Identity, error) {
	seen := map[string]bool{}
	out := make([][]*models.Identity, 0, g.opts.Companies)
	for len(out) < g.opts.Companies {
		domain, err := validation.NormalizeCompanyDomain(g.faker.DomainName())
		if err != nil || seen[domain] {
			continue
		}
		seen[domain] = true

		staff := make([]*models.Identity, 0, g.opts.PeoplePerCompany)
		for i := 0; i < g.opts.PeoplePerCompany; i++ {
			anonID, err := identity.NewAnonymousID()
			if err != nil {
				return nil, err
			}
			staff = append(staff, &models.Identity{AnonymousID: anonID, CompanyDomain: domain})
		}
		out = append(out, staff)
	}
	return out, nil
}

func (g *Generator) anyone(people [][]*models.Identity) *models.Identity {
	company := people[g.faker.Number(0, len(people)-1)]
	return company[g.faker.Number(0, len(company)-1)]
}

func (g *Generator) content() string {
	var text string
	switch g.faker.Number(0, 2) {
	case 0:
		text = g.faker.HackerPhrase()
	case 1:
		text = g.faker.Question()
	default:
		text = g.faker.Sentence(g.faker.Number(6, 24))
	}
	return truncate(strings.TrimSpace(text), validation.DefaultContentMaxLength)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
