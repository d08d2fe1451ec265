package feed_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivybound/taskrunner/internal/feed"
	"github.com/ivybound/taskrunner/internal/store"
)

func TestBuildAlertsFeed_RendersEntriesAndSuppressedMarker(t *testing.T) {
	alerts := []*store.Alert{
		{ID: 1, TaskID: 7, Kind: store.AlertExecFailed, Message: "run 1 failed", Suppressed: false, CreatedAt: time.Now()},
		{ID: 2, TaskID: 7, Kind: store.AlertReentry, Message: "already running", Suppressed: true, CreatedAt: time.Now()},
	}

	xml, err := feed.BuildAlertsFeed(alerts, "http://localhost:8901")
	require.NoError(t, err)

	assert.True(t, strings.Contains(xml, "run 1 failed"))
	assert.True(t, strings.Contains(xml, "(suppressed) "))
	assert.True(t, strings.Contains(xml, "taskrunner alerts"))
}

func TestBuildAlertsFeed_EmptyListStillProducesValidFeed(t *testing.T) {
	xml, err := feed.BuildAlertsFeed(nil, "http://localhost:8901")
	require.NoError(t, err)
	assert.True(t, strings.Contains(xml, "<feed"))
}
