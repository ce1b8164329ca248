package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/dougbarrett/reactivequery/api"
)

// Post is the demo's only domain type, carried over from the teacher's
// example/api/types.go (a blog post owned by a user).
type Post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// CreatePostRequest is the request body for creating or updating a post.
type CreatePostRequest struct {
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// PostsPage is one page of a paginated posts listing, shaped so
// query.InfiniteQuery's getNextPageParam can read HasMore/NextSkip
// directly off the page the way the spec's "Infinite pagination" scenario
// describes (§8).
type PostsPage struct {
	Items    []Post `json:"items"`
	Total    int    `json:"total"`
	HasMore  bool   `json:"hasMore"`
	NextSkip int    `json:"nextSkip"`
}

// PostsService is an in-memory posts store, adapted from the teacher's
// example/server/posts.go PostsService: same map+mutex+nextID shape and
// seed data, with List replaced by a paginated GetPage so the demo can
// exercise InfiniteQuery.
type PostsService struct {
	mu     sync.RWMutex
	order  []int
	posts  map[int]Post
	nextID int
}

// NewPostsService creates a PostsService seeded with sample posts.
func NewPostsService() *PostsService {
	s := &PostsService{posts: make(map[int]Post), nextID: 1}
	for i := 1; i <= 45; i++ {
		p := Post{
			ID:     i,
			UserID: (i % 3) + 1,
			Title:  fmt.Sprintf("Post #%d", i),
			Body:   fmt.Sprintf("Body text for post %d.", i),
		}
		s.posts[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	s.nextID = 46
	return s
}

// GetPage returns up to limit posts starting at skip, ordered by creation,
// along with whether more posts remain (§8 "Infinite pagination" scenario:
// 45 total posts, pages of 20).
func (s *PostsService) GetPage(ctx context.Context, skip, limit int) (PostsPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	if skip > total {
		skip = total
	}
	end := skip + limit
	if end > total {
		end = total
	}

	items := make([]Post, 0, end-skip)
	for _, id := range s.order[skip:end] {
		items = append(items, s.posts[id])
	}

	return PostsPage{
		Items:    items,
		Total:    total,
		HasMore:  end < total,
		NextSkip: end,
	}, nil
}

// GetByID returns a single post by ID.
func (s *PostsService) GetByID(ctx context.Context, id int) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return Post{}, api.NotFoundf("post %d not found", id)
	}
	return post, nil
}

// Create adds a new post.
func (s *PostsService) Create(ctx context.Context, req CreatePostRequest) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post := Post{ID: s.nextID, UserID: req.UserID, Title: req.Title, Body: req.Body}
	s.posts[post.ID] = post
	s.order = append(s.order, post.ID)
	s.nextID++
	return post, nil
}

// Delete removes a post.
func (s *PostsService) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return api.NotFoundf("post %d not found", id)
	}
	delete(s.posts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
