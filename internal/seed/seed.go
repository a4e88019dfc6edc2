// Package seed loads demo company feeds for development and tests. Everything
// goes through the feed services, so seeded rows obey the same rules as
// client writes.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"anonfeed/internal/models"
	"anonfeed/internal/service"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

// Summary counts what a seeding run wrote. Replayed fixtures are counted too.
type Summary struct {
	Posts    int
	Comments int
	Likes    int
}

type fixtureAuthor struct {
	AnonymousID   string `yaml:"anonymous_id"`
	CompanyDomain string `yaml:"company_domain"`
}

func (a fixtureAuthor) identity() *models.Identity {
	return &models.Identity{AnonymousID: a.AnonymousID, CompanyDomain: a.CompanyDomain}
}

type fixtureComment struct {
	Key     string        `yaml:"key"`
	Author  fixtureAuthor `yaml:"author"`
	Content string        `yaml:"content"`
}

type fixturePost struct {
	Key      string           `yaml:"key"`
	Author   fixtureAuthor    `yaml:"author"`
	Content  string           `yaml:"content"`
	Comments []fixtureComment `yaml:"comments"`
}

type fixtureFile struct {
	Posts []fixturePost `yaml:"posts"`
}

func loadFixtures(raw []byte) (fixtureFile, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fixtureFile{}, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, p := range f.Posts {
		if p.Key == "" {
			return fixtureFile{}, fmt.Errorf("fixture post %d has no key", i)
		}
		if !p.Author.identity().Authenticated() {
			return fixtureFile{}, fmt.Errorf("fixture post %q has an incomplete author", p.Key)
		}
		for _, c := range p.Comments {
			if c.Key == "" || !c.Author.identity().Authenticated() {
				return fixtureFile{}, fmt.Errorf("fixture comment on %q needs a key and an author", p.Key)
			}
		}
	}
	return f, nil
}

// Fixtures writes the embedded sample feeds. Each row carries an idempotency
// key, so running it again returns the existing rows.
func Fixtures(ctx context.Context, posts *service.PostService, comments *service.CommentService) (Summary, error) {
	f, err := loadFixtures(fixturesYAML)
	if err != nil {
		return Summary{}, err
	}
	return applyFixtures(ctx, f, posts, comments)
}

func applyFixtures(ctx context.Context, f fixtureFile, posts *service.PostService, comments *service.CommentService) (Summary, error) {
	var sum Summary
	for _, fp := range f.Posts {
		post, err := posts.CreatePost(ctx, service.CreatePostInput{
			Identity:       fp.Author.identity(),
			Content:        fp.Content,
			IdempotencyKey: "seed:" + fp.Key,
		})
		if err != nil {
			return sum, fmt.Errorf("seed post %q: %w", fp.Key, err)
		}
		sum.Posts++

		for _, fc := range fp.Comments {
			if _, err := comments.CreateComment(ctx, service.CreateCommentInput{
				PostID:         post.ID,
				Identity:       fc.Author.identity(),
				Content:        fc.Content,
				IdempotencyKey: "seed:" + fc.Key,
			}); err != nil {
				return sum, fmt.Errorf("seed comment %q: %w", fc.Key, err)
			}
			sum.Comments++
		}
	}
	return sum, nil
}
