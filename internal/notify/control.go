package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autoedu/coursepilot/internal/status"
)

// Requeuer flips an account's upstream status back to pending so the next run
// picks it up again. The queue client implements it; CSV runs pass nil.
type Requeuer interface {
	Requeue(ctx context.Context, userID string) error
}

// Controller long-polls getUpdates and answers operator commands. Supported
// commands: /status (current account and progress), /restart (flag the
// running account for a fresh session on its next retry), /requeue (move this
// run's failed accounts back to pending upstream).
type Controller struct {
	Client      *Client
	State       *status.RunnerState
	Queue       Requeuer // optional
	AllowedChat string

	PollTimeout time.Duration // long-poll window, default 50s

	restartRequested chan struct{}
	offset           int64
}

func NewController(client *Client, state *status.RunnerState, queue Requeuer, allowedChat string) *Controller {
	return &Controller{
		Client:           client,
		State:            state,
		Queue:            queue,
		AllowedChat:      allowedChat,
		PollTimeout:      50 * time.Second,
		restartRequested: make(chan struct{}, 1),
	}
}

// RestartRequested reports and clears a pending /restart command.
func (c *Controller) RestartRequested() bool {
	select {
	case <-c.restartRequested:
		return true
	default:
		return false
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Run polls until ctx is cancelled. Errors are logged and retried with a
// short backoff so a flaky network does not kill the control loop.
func (c *Controller) Run(ctx context.Context) {
	if c.Client == nil || !c.Client.enabled() {
		return
	}
	for {
		updates, err := c.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("notify: getUpdates: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			c.offset = u.UpdateID + 1
			c.handle(ctx, u)
		}
	}
}

func (c *Controller) fetchUpdates(ctx context.Context) ([]update, error) {
	timeout := c.PollTimeout
	if timeout <= 0 {
		timeout = 50 * time.Second
	}
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	if c.offset > 0 {
		q.Set("offset", strconv.FormatInt(c.offset, 10))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Client.APIBase+"/getUpdates?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.Client.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("getUpdates: %s", res.Status)
	}
	var out struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("getUpdates: ok=false")
	}
	return out.Result, nil
}

func (c *Controller) handle(ctx context.Context, u update) {
	if u.Message == nil {
		return
	}
	chat := strconv.FormatInt(u.Message.Chat.ID, 10)
	if c.AllowedChat != "" && chat != c.AllowedChat {
		return
	}
	cmd := strings.TrimSpace(u.Message.Text)
	switch {
	case strings.HasPrefix(cmd, "/status"):
		c.replyStatus(ctx, chat)
	case strings.HasPrefix(cmd, "/restart"):
		select {
		case c.restartRequested <- struct{}{}:
		default:
		}
		_ = c.Client.SendMessage(ctx, chat, "restart queued for the current account")
	case strings.HasPrefix(cmd, "/requeue"):
		c.requeueFailed(ctx, chat)
	}
}

// requeueFailed moves every failed account of this run back to pending
// upstream and clears them from the local record.
func (c *Controller) requeueFailed(ctx context.Context, chat string) {
	failed := c.State.Snapshot().FailedAccounts
	if len(failed) == 0 {
		_ = c.Client.SendMessage(ctx, chat, "no failed accounts to requeue")
		return
	}
	if c.Queue == nil {
		_ = c.Client.SendMessage(ctx, chat, "no queue backend configured")
		return
	}
	var requeued []string
	for _, user := range failed {
		if err := c.Queue.Requeue(ctx, user); err != nil {
			log.Printf("notify: requeue %s: %v", user, err)
			continue
		}
		requeued = append(requeued, user)
	}
	c.State.ClearFailed(requeued)
	_ = c.Client.SendMessage(ctx, chat,
		fmt.Sprintf("requeued %d of %d failed account(s)", len(requeued), len(failed)))
}

func (c *Controller) replyStatus(ctx context.Context, chat string) {
	v := c.State.Snapshot()
	var b strings.Builder
	if v.CurrentUser == "" {
		b.WriteString("idle")
	} else {
		fmt.Fprintf(&b, "account %s\ncourse: %s\nprogress: %s", v.CurrentUser, v.CurrentCourse, v.Progress)
	}
	fmt.Fprintf(&b, "\ndone %d/%d", v.DoneAccounts, v.TotalAccounts)
	if len(v.FailedAccounts) > 0 {
		fmt.Fprintf(&b, "\nfailed: %s", strings.Join(v.FailedAccounts, ", "))
	}
	_ = c.Client.SendMessage(ctx, chat, b.String())
}
