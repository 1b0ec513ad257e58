// Package site stores the news feed and the site settings.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/logging"
)

// NewsCollection holds news posts.
const NewsCollection = "news"

// ErrMissingFields is returned when a required field is blank.
var ErrMissingFields = errors.New("title and content are required")

// Post is one news item.
type Post struct {
	ID             string
	Title          string
	Content        string
	CreatedAt      time.Time
	CreatedAtLocal *time.Time
}

// News publishes and lists posts.
type News struct {
	store  docstore.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewNews(store docstore.Store, logger *slog.Logger) *News {
	return &News{
		store:  store,
		now:    time.Now,
		logger: logging.WithComponent(logging.OrDiscard(logger), "news"),
	}
}

// Publish stores a post. Title and content are trimmed and both required.
func (n *News) Publish(ctx context.Context, title, content string) (*Post, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, ErrMissingFields
	}

	local := n.now()
	doc, err := n.store.Create(ctx, NewsCollection, map[string]any{
		"title":          title,
		"content":        content,
		"createdAtLocal": local.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("save news: %w", err)
	}
	n.logger.Info("news published", "id", doc.ID)
	return postFrom(doc), nil
}

// List returns every post, newest first.
func (n *News) List(ctx context.Context) ([]*Post, error) {
	docs, err := n.store.List(ctx, NewsCollection, docstore.Descending)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	posts := make([]*Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, postFrom(doc))
	}
	return posts, nil
}

func postFrom(doc *docstore.Document) *Post {
	p := &Post{
		ID:        doc.ID,
		Title:     doc.String("title"),
		Content:   doc.String("content"),
		CreatedAt: doc.CreatedAt,
	}
	if s := doc.String("createdAtLocal"); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			p.CreatedAtLocal = &t
		}
	}
	return p
}
