package types

import "testing"

func TestDeriveProgress(t *testing.T) {
	tests := []struct {
		name             string
		currentParagraph int
		totalParagraphs  int
		wantProgress     int
		wantStatus       string
	}{
		{"first paragraph of five", 0, 5, 20, StatusReading},
		{"middle paragraph", 2, 4, 75, StatusReading},
		{"last paragraph of five", 4, 5, 100, StatusCompleted},
		{"single paragraph story", 0, 1, 100, StatusCompleted},
		{"zero total paragraphs", 0, 0, 0, StatusIdle},
		{"negative total paragraphs", 3, -1, 0, StatusIdle},
		{"rounding up", 0, 3, 33, StatusReading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progress, status := DeriveProgress(tt.currentParagraph, tt.totalParagraphs)
			if progress != tt.wantProgress {
				t.Errorf("DeriveProgress(%d, %d) progress = %d, want %d",
					tt.currentParagraph, tt.totalParagraphs, progress, tt.wantProgress)
			}
			if status != tt.wantStatus {
				t.Errorf("DeriveProgress(%d, %d) status = %s, want %s",
					tt.currentParagraph, tt.totalParagraphs, status, tt.wantStatus)
			}
		})
	}
}

func TestIsValidMode(t *testing.T) {
	if !IsValidMode(ModeTeacherStory) || !IsValidMode(ModeFreeTime) {
		t.Error("known modes should be valid")
	}
	if IsValidMode("") || IsValidMode("quiz_battle") {
		t.Error("unknown modes should be invalid")
	}
}

func TestIsValidEventType(t *testing.T) {
	for _, et := range []string{
		EventTypeStudentJoin, EventTypeProgressUpdate,
		EventTypeTeacherStoryReady, EventTypeSessionEnd,
	} {
		if !IsValidEventType(et) {
			t.Errorf("event type %s should be valid", et)
		}
	}

	// connected is synthesized by the relay, never appended to the log
	if IsValidEventType(EventTypeConnected) {
		t.Error("connected must not be a loggable event type")
	}
}
