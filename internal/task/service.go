package task

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskdeck.io/internal/validate"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	maxTitleLength  = 200
	maxDescLength   = 2000
)

// MaxPage bounds the page index so that page*MaxPageSize fits in an int32.
const MaxPage = math.MaxInt32 / MaxPageSize

// Input carries client-supplied task fields. Nil fields are left unchanged on update.
type Input struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"dueDate"`
}

// Service applies validation and paging on top of a Store.
type Service struct {
	store  Store
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer("taskdeck.io/internal/task")
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tracer: otel.Tracer("taskdeck.io/internal/task"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new PENDING task for owner.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in Input) (t Task, err error) {
	ctx, span := s.start(ctx, "task.Create", ownerID)
	defer func() { endSpan(span, err) }()

	v := validate.Errors{}
	title := ""
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
	}
	v.Check(title != "", "title", "is required")
	fields := s.apply(&Task{}, in, v)
	if err := v.Err(); err != nil {
		return Task{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, err
	}
	now := s.now().UTC()
	t = Task{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Description: fields.Description,
		Status:      StatusPending,
		Priority:    PriorityMedium,
		DueDate:     fields.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if fields.Priority != "" {
		t.Priority = fields.Priority
	}
	if err := s.store.Create(ctx, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// List returns one page of owner's tasks. status may be empty.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, status string, page, size int) (p Page, err error) {
	ctx, span := s.start(ctx, "task.List", ownerID)
	defer func() { endSpan(span, err) }()

	v := validate.Errors{}
	var st Status
	if strings.TrimSpace(status) != "" {
		var ok bool
		st, ok = ParseStatus(status)
		v.Check(ok, "status", "must be one of PENDING, IN_PROGRESS, COMPLETED, CANCELLED")
	}
	v.Check(page >= 0, "page", "must not be negative")
	v.Check(page <= MaxPage, "page", "is too large")
	v.Check(size >= 0, "size", "must not be negative")
	if err := v.Err(); err != nil {
		return Page{}, err
	}
	if size == 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)

	tasks, total, err := s.store.List(ctx, Query{OwnerID: ownerID, Status: st, Offset: page * size, Limit: size})
	if err != nil {
		return Page{}, err
	}
	p = Page{
		Content:       make([]Summary, 0, len(tasks)),
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    int((total + int64(size) - 1) / int64(size)),
	}
	for _, t := range tasks {
		p.Content = append(p.Content, t.Summarize())
	}
	return p, nil
}

// Get returns owner's task id.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (Task, error) {
	ctx, span := s.start(ctx, "task.Get", ownerID)
	t, err := s.store.Get(ctx, ownerID, id)
	endSpan(span, err)
	return t, err
}

// Update changes only the supplied fields of owner's task id.
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, in Input) (t Task, err error) {
	ctx, span := s.start(ctx, "task.Update", ownerID)
	defer func() { endSpan(span, err) }()

	v := validate.Errors{}
	if in.Title != nil {
		v.Check(strings.TrimSpace(*in.Title) != "", "title", "must not be blank")
	}
	fields := s.apply(&Task{}, in, v)
	if err := v.Err(); err != nil {
		return Task{}, err
	}
	return s.store.Update(ctx, ownerID, id, func(cur *Task) error {
		if in.Title != nil {
			cur.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			cur.Description = fields.Description
		}
		if fields.Status != "" {
			cur.Status = fields.Status
		}
		if fields.Priority != "" {
			cur.Priority = fields.Priority
		}
		if in.DueDate != nil {
			cur.DueDate = fields.DueDate
		}
		cur.UpdatedAt = s.now().UTC()
		return nil
	})
}

// Delete removes owner's task id.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	ctx, span := s.start(ctx, "task.Delete", ownerID)
	err := s.store.Delete(ctx, ownerID, id)
	endSpan(span, err)
	return err
}

// apply validates the optional fields of in into dst and records failures in v.
func (s *Service) apply(dst *Task, in Input, v validate.Errors) *Task {
	if in.Title != nil {
		v.Check(validate.Length(strings.TrimSpace(*in.Title), 0, maxTitleLength), "title", "must be at most 200 characters")
	}
	if in.Description != nil {
		dst.Description = strings.TrimSpace(*in.Description)
		v.Check(validate.Length(dst.Description, 0, maxDescLength), "description", "must be at most 2000 characters")
	}
	if in.Status != nil {
		st, ok := ParseStatus(*in.Status)
		v.Check(ok, "status", "must be one of PENDING, IN_PROGRESS, COMPLETED, CANCELLED")
		dst.Status = st
	}
	if in.Priority != nil {
		p, ok := ParsePriority(*in.Priority)
		v.Check(ok, "priority", "must be one of LOW, MEDIUM, HIGH, URGENT")
		dst.Priority = p
	}
	if in.DueDate != nil {
		due, err := time.Parse(time.RFC3339, strings.TrimSpace(*in.DueDate))
		if err != nil {
			v.Add("dueDate", "must be an RFC3339 timestamp")
		} else {
			due = due.UTC()
			dst.DueDate = &due
		}
	}
	return dst
}

func (s *Service) start(ctx context.Context, name string, ownerID uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("account.id", ownerID.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
