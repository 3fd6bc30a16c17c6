package service

import (
	"context"
	"sync"

	"lms-agent/config"
	"lms-agent/internal/lmstest"
	"lms-agent/model"
)

type fakeClassifier struct {
	mu       sync.Mutex
	calls    int
	messages []string
	fn       func(message string) (*model.Classification, error)
}

func (f *fakeClassifier) Classify(ctx context.Context, message string, _ *model.ChatContext) (*model.Classification, error) {
	f.mu.Lock()
	f.calls++
	f.messages = append(f.messages, message)
	fn := f.fn
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return &model.Classification{Intent: model.IntentHelp, Confidence: 1}, nil
	}
	return fn(message)
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func classifyAs(intent model.Intent, entities map[string]any) func(string) (*model.Classification, error) {
	return func(string) (*model.Classification, error) {
		return &model.Classification{Intent: intent, Entities: entities, Confidence: 0.95}, nil
	}
}

var (
	sarah    = model.Entity{ID: "11", Name: "Sarah Lee", Email: "sarah@x.com"}
	sarahK   = model.Entity{ID: "13", Name: "Sarah Kim", Email: "skim@x.com"}
	john     = model.Entity{ID: "12", Name: "John Park", Email: "john@x.com"}
	excel    = model.Entity{ID: "7", Name: "Excel Basics"}
	excelAdv = model.Entity{ID: "8", Name: "Excel Advanced"}
	safety   = model.Entity{ID: "9", Name: "Workplace Safety"}
	sales    = model.Entity{ID: "31", Name: "Sales Team"}
)

func newDirectory() *lmstest.Fake {
	return &lmstest.Fake{
		Users:   []model.Entity{sarah, sarahK, john},
		Courses: []model.Entity{excel, excelAdv, safety},
		Groups:  []model.Entity{sales},
		Enrollments: map[string][]model.Enrollment{
			"11": {{CourseID: "7", CourseName: "Excel Basics", Status: "in_progress", Progress: 0.5}},
		},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Validation.MaxMessageLength = 500
	return cfg
}
