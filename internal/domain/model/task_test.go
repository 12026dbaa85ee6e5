package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"queued to in_review", StatusQueued, StatusInReview, true},
		{"queued to blocked", StatusQueued, StatusBlocked, true},
		{"queued straight to done", StatusQueued, StatusDone, false},
		{"queued to ready", StatusQueued, StatusReadyForIntegration, false},
		{"in_review to ready", StatusInReview, StatusReadyForIntegration, true},
		{"in_review to done", StatusInReview, StatusDone, true},
		{"in_review to blocked", StatusInReview, StatusBlocked, true},
		{"in_review back to queued", StatusInReview, StatusQueued, false},
		{"ready to done", StatusReadyForIntegration, StatusDone, true},
		{"ready to blocked", StatusReadyForIntegration, StatusBlocked, true},
		{"ready back to in_review", StatusReadyForIntegration, StatusInReview, false},
		{"blocked to queued", StatusBlocked, StatusQueued, true},
		{"blocked to done", StatusBlocked, StatusDone, false},
		{"done is terminal", StatusDone, StatusQueued, false},
		{"done to blocked", StatusDone, StatusBlocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestFormatTaskID(t *testing.T) {
	assert.Equal(t, "T-0001", FormatTaskID(1))
	assert.Equal(t, "T-0042", FormatTaskID(42))
	assert.Equal(t, "T-9999", FormatTaskID(9999))
}

func TestExtractTaskID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"T-0001: Add importer", "T-0001"},
		{"fix: follow-up for T-0123 edge case", "T-0123"},
		{"T-0001 then T-0002", "T-0001"},
		{"hotfix typo", ""},
		{"T-42: short id does not count", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractTaskID(tt.in), "input %q", tt.in)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add importer", "add-importer"},
		{"Initialize basic CI", "initialize-basic-ci"},
		{"Fix  double   spaces", "fix-double-spaces"},
		{"Drop: punctuation! (all of it)", "drop-punctuation-all-of-it"},
		{"  leading and trailing  ", "leading-and-trailing"},
		{"v2", "v2"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input %q", tt.in)
	}
}

func TestBranchName(t *testing.T) {
	task := Task{ID: "T-0007", Title: "Wire the exporter"}
	assert.Equal(t, "feature/T-0007-wire-the-exporter", task.BranchName())
}

func intPtr(n int) *int { return &n }

func TestOrderTasks(t *testing.T) {
	tasks := []Task{
		{ID: "T-0004", Priority: "P2"},
		{ID: "T-0001", Priority: "P2", Order: intPtr(2)},
		{ID: "T-0002", Priority: "P0"},
		{ID: "T-0003", Priority: "P2", Order: intPtr(1)},
		{ID: "T-0005", Priority: "bogus"},
	}

	got := OrderTasks(tasks)

	ids := make([]string, len(got))
	for i, task := range got {
		ids[i] = task.ID
	}
	// P0 first; within P2, explicit order before unordered; unknown
	// priority sorts last.
	assert.Equal(t, []string{"T-0002", "T-0003", "T-0001", "T-0004", "T-0005"}, ids)

	// Input order untouched.
	assert.Equal(t, "T-0004", tasks[0].ID)
}

func TestNextClaimable(t *testing.T) {
	queued := func(id, priority string, deps ...string) Task {
		return Task{ID: id, Title: "Task " + id, Status: StatusQueued, Priority: priority, DependsOn: deps}
	}

	t.Run("picks highest priority queued task", func(t *testing.T) {
		got := NextClaimable([]Task{
			queued("T-0002", "P2"),
			queued("T-0001", "P1"),
		}, nil, nil)
		require.NotNil(t, got)
		assert.Equal(t, "T-0001", got.ID)
	})

	t.Run("skips tasks with unfinished dependencies", func(t *testing.T) {
		got := NextClaimable([]Task{
			queued("T-0002", "P1", "T-0001"),
			{ID: "T-0001", Status: StatusInReview, Priority: "P1"},
			queued("T-0003", "P2"),
		}, nil, nil)
		require.NotNil(t, got)
		assert.Equal(t, "T-0003", got.ID)
	})

	t.Run("unknown dependency blocks the task", func(t *testing.T) {
		got := NextClaimable([]Task{queued("T-0002", "P1", "T-9999")}, nil, nil)
		assert.Nil(t, got)
	})

	t.Run("done dependencies unblock", func(t *testing.T) {
		got := NextClaimable([]Task{
			queued("T-0002", "P1", "T-0001"),
			{ID: "T-0001", Status: StatusDone, Priority: "P1"},
		}, nil, nil)
		require.NotNil(t, got)
		assert.Equal(t, "T-0002", got.ID)
	})

	t.Run("open PR title claims the task", func(t *testing.T) {
		got := NextClaimable(
			[]Task{queued("T-0001", "P1"), queued("T-0002", "P2")},
			[]string{"T-0001: Task T-0001"},
			nil,
		)
		require.NotNil(t, got)
		assert.Equal(t, "T-0002", got.ID)
	})

	t.Run("existing feature branch claims the task", func(t *testing.T) {
		got := NextClaimable(
			[]Task{queued("T-0001", "P1"), queued("T-0002", "P2")},
			nil,
			[]string{"feature/T-0001-task-t-0001"},
		)
		require.NotNil(t, got)
		assert.Equal(t, "T-0002", got.ID)
	})

	t.Run("unrelated branches do not claim", func(t *testing.T) {
		got := NextClaimable(
			[]Task{queued("T-0001", "P1")},
			nil,
			[]string{"main", "feature/T-0010-other"},
		)
		require.NotNil(t, got)
		assert.Equal(t, "T-0001", got.ID)
	})

	t.Run("nothing queued", func(t *testing.T) {
		got := NextClaimable([]Task{
			{ID: "T-0001", Status: StatusDone},
			{ID: "T-0002", Status: StatusInReview},
		}, nil, nil)
		assert.Nil(t, got)
	})
}
