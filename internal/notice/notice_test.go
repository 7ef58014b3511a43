package notice_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/notice"
	notice_mocks "github.com/starford/mocsync/internal/notice/mocks"
)

func TestFromError_ClassifiesKind(t *testing.T) {
	err := apperr.New(apperr.KindCollision, "rename item", "Projects/Alpha", nil)
	n := notice.FromError("Projects/Projects.md", err)
	if n.Kind != "collision" || n.Level != notice.LevelError {
		t.Errorf("notice = %+v", n)
	}
	if n.ID == "" {
		t.Error("notice without ID")
	}
	if other := notice.FromError("", errors.New("boom")); other.ID == n.ID {
		t.Error("IDs should be unique")
	}
}

func TestMulti_ForwardsToAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := notice_mocks.NewMockNotifier(ctrl)
	second := notice_mocks.NewMockNotifier(ctrl)
	n := notice.New(notice.LevelInfo, "Hub/Hub.md", "updated")

	gomock.InOrder(
		first.EXPECT().Notify(gomock.Any(), n),
		second.EXPECT().Notify(gomock.Any(), n),
	)
	notice.Multi{first, second}.Notify(context.Background(), n)
}

func TestLogNotifier_WritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	notice.NewLogNotifier(logger).Notify(context.Background(), notice.New(notice.LevelWarn, "Hub/Hub.md", "duplicate kept"))

	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"hub":"Hub/Hub.md"`, `"message":"duplicate kept"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
}
