package server

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"twittersphere/internal/spheredb"
	"twittersphere/internal/version"
)

type TableCountsParams struct{}

type GetUserParams struct {
	UserID string `json:"user_id"`
}

type GetPostParams struct {
	TweetID string `json:"tweet_id"`
}

type ListContextsParams struct {
	Limit *int `json:"limit,omitempty"`
}

// handlers answers tool calls against one store file.
type handlers struct {
	dbPath string
}

// Run serves the read-only tools over stdio until ctx is done or the client
// disconnects.
func Run(ctx context.Context, dbPath string) error {
	server := mcp.NewServer(&mcp.Implementation{Name: "twittersphere", Version: version.Version}, nil)
	h := &handlers{dbPath: dbPath}

	mcp.AddTool(server, &mcp.Tool{Name: "table_counts", Description: "Count rows in every table of the twittersphere store"}, h.handleTableCounts)
	mcp.AddTool(server, &mcp.Tool{Name: "get_user", Description: "Get the latest observed snapshot of a Twitter user by id"}, h.handleGetUser)
	mcp.AddTool(server, &mcp.Tool{Name: "get_post", Description: "Get the latest observed snapshot of a tweet by id, with its hashtags and mentions"}, h.handleGetPost)
	mcp.AddTool(server, &mcp.Tool{Name: "list_contexts", Description: "List the most recent collection contexts (retrieval time, endpoint, twarc version)"}, h.handleListContexts)

	return server.Run(ctx, &mcp.StdioTransport{})
}

// open returns the store, or a result map explaining why it is unavailable.
func (h *handlers) open(ctx context.Context) (*spheredb.Store, map[string]any) {
	if !fileExists(h.dbPath) {
		return nil, map[string]any{
			"ok":      false,
			"message": fmt.Sprintf("twittersphere database not found at %s", h.dbPath),
			"hint":    "Run 'twittersphere prepare <inputs...> <db>' to create it, or pass --db.",
			"db_path": h.dbPath,
		}
	}
	store, err := spheredb.OpenExisting(ctx, h.dbPath)
	if err != nil {
		return nil, map[string]any{
			"ok":      false,
			"message": "Failed opening the twittersphere database",
			"error":   err.Error(),
			"db_path": h.dbPath,
		}
	}
	return store, nil
}

func (h *handlers) handleTableCounts(ctx context.Context, req *mcp.CallToolRequest, p TableCountsParams) (*mcp.CallToolResult, any, error) {
	store, failure := h.open(ctx)
	if failure != nil {
		return nil, failure, nil
	}
	defer store.Close()

	counts, err := spheredb.TableCounts(ctx, store.DB)
	if err != nil {
		return nil, nil, err
	}
	return nil, map[string]any{"count": len(counts), "tables": counts}, nil
}

func (h *handlers) handleGetUser(ctx context.Context, req *mcp.CallToolRequest, p GetUserParams) (*mcp.CallToolResult, any, error) {
	id, err := parseID(p.UserID)
	if err != nil {
		return nil, map[string]any{"ok": false, "message": "user_id must be a numeric id", "error": err.Error()}, nil
	}
	store, failure := h.open(ctx)
	if failure != nil {
		return nil, failure, nil
	}
	defer store.Close()

	u, err := spheredb.LatestUser(ctx, store.DB, id)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, map[string]any{"ok": false, "message": fmt.Sprintf("user %d was never observed", id)}, nil
	}
	return nil, map[string]any{
		"ok":                 true,
		"user_id":            strconv.FormatInt(u.UserID, 10),
		"retrieved_at":       u.RetrievedAt,
		"username":           u.Username.String,
		"name":               u.Name.String,
		"description":        u.Description.String,
		"location":           u.Location.String,
		"followers_count":    u.FollowersCount,
		"following_count":    u.FollowingCount,
		"tweet_count":        u.TweetCount,
		"verified":           u.Verified,
		"protected":          u.Protected,
		"directly_collected": u.DirectCollected,
		"versions":           u.Versions,
	}, nil
}

func (h *handlers) handleGetPost(ctx context.Context, req *mcp.CallToolRequest, p GetPostParams) (*mcp.CallToolResult, any, error) {
	id, err := parseID(p.TweetID)
	if err != nil {
		return nil, map[string]any{"ok": false, "message": "tweet_id must be a numeric id", "error": err.Error()}, nil
	}
	store, failure := h.open(ctx)
	if failure != nil {
		return nil, failure, nil
	}
	defer store.Close()

	post, err := spheredb.LatestPost(ctx, store.DB, id)
	if err != nil {
		return nil, nil, err
	}
	if post == nil {
		return nil, map[string]any{"ok": false, "message": fmt.Sprintf("tweet %d was never observed", id)}, nil
	}
	return nil, map[string]any{
		"ok":                 true,
		"tweet_id":           strconv.FormatInt(post.TweetID, 10),
		"user_id":            strconv.FormatInt(post.UserID, 10),
		"retrieved_at":       post.RetrievedAt,
		"created_at":         post.CreatedAt.String,
		"text":               post.Text.String,
		"like_count":         post.LikeCount,
		"retweet_count":      post.RetweetCount,
		"reply_count":        post.ReplyCount,
		"quote_count":        post.QuoteCount,
		"directly_collected": post.DirectCollected,
		"hashtags":           post.Hashtags,
		"mentions":           post.Mentions,
	}, nil
}

func (h *handlers) handleListContexts(ctx context.Context, req *mcp.CallToolRequest, p ListContextsParams) (*mcp.CallToolResult, any, error) {
	lim := 50
	if p.Limit != nil && *p.Limit > 0 {
		lim = *p.Limit
	}
	store, failure := h.open(ctx)
	if failure != nil {
		return nil, failure, nil
	}
	defer store.Close()

	ccs, err := spheredb.Contexts(ctx, store.DB, lim)
	if err != nil {
		return nil, nil, err
	}
	return nil, map[string]any{"count": len(ccs), "items": ccs}, nil
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return false
}
