// Package feed publishes a read-only Atom feed of recent Alert rows, a
// passive subscription surface for operators alongside the
// fire-and-forget push notifier.
package feed

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"

	"github.com/ivybound/taskrunner/internal/store"
)

// BaseURL is the link the feed's entries and top-level <link> point at.
// It is set once at startup from the configured ROOT_PATH/HOST/PORT.
type BaseURL string

// BuildAlertsFeed renders the most recent alerts as an Atom feed. A nil
// entry is skipped; the only error returned is one from Atom encoding.
func BuildAlertsFeed(alerts []*store.Alert, base BaseURL) (string, error) {
	now := time.Now().UTC()
	feed := &feeds.Feed{
		Title:       "taskrunner alerts",
		Link:        &feeds.Link{Href: string(base) + "/feed/alerts.atom"},
		Description: "Recent exec_failed, reentry, job_missing and internal_error alerts raised by the orchestrator.",
		Created:     now,
	}

	for _, a := range alerts {
		if a == nil {
			continue
		}
		title := fmt.Sprintf("[%s] task %d: %s", a.Kind, a.TaskID, a.Message)
		if a.Suppressed {
			title = "(suppressed) " + title
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      fmt.Sprintf("alert-%d", a.ID),
			Title:   title,
			Link:    &feeds.Link{Href: fmt.Sprintf("%s/api/v1/alerts#%d", base, a.ID)},
			Created: a.CreatedAt,
			Content: a.Message,
		})
	}

	return feed.ToAtom()
}
