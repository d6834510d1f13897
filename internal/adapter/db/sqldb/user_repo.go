package sqldb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-api/internal/domain/user"
	pkgerrors "user-api/pkg/errors"
)

const instrumentationName = "user-api/internal/adapter/db/sqldb"

// UserRepoSQL implements the user Repository interface on top of GORM.
// It works with any dialect GORM was opened with (MySQL, PostgreSQL, SQLite).
type UserRepoSQL struct {
	db       *gorm.DB                // GORM database connection
	log      *zap.Logger             // Structured logger for database operations
	tracer   trace.Tracer            // Span per repository operation
	duration metric.Float64Histogram // Operation latency in milliseconds
}

// NewUserRepoSQL creates a new instance of UserRepoSQL.
// Tracing and metrics go through the global OpenTelemetry providers.
func NewUserRepoSQL(db *gorm.DB, log *zap.Logger) *UserRepoSQL {
	duration, err := otel.Meter(instrumentationName).Float64Histogram(
		"user_api.db.operation.duration",
		metric.WithDescription("Duration of user repository operations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		log.Warn("failed to create repository duration histogram", zap.Error(err))
		duration = nil
	}

	return &UserRepoSQL{
		db:       db,
		log:      log,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
	}
}

// UserSchema represents the database schema for the users table.
type UserSchema struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`      // Unique identifier with auto-increment
	Name      string `gorm:"size:255;not null"`             // User's full name (required)
	Email     string `gorm:"size:255;not null;uniqueIndex"` // User's unique email address (required, unique)
	Age       int    `gorm:"not null"`                      // User's age (required)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for the UserSchema model.
func (UserSchema) TableName() string {
	return "users"
}

func (m UserSchema) toDomain() *user.User {
	return &user.User{
		ID:    m.ID,
		Name:  m.Name,
		Email: m.Email,
		Age:   m.Age,
	}
}

// AutoMigrate creates or updates the tables owned by this package.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserSchema{})
}

// observe starts a span for op and returns a func that ends it and records latency.
func (r *UserRepoSQL) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", op),
		attribute.String("db.system", r.db.Dialector.Name()),
		attribute.String("db.sql.table", "users"),
	}

	ctx, span := r.tracer.Start(ctx, "UserRepository."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		var notFound *pkgerrors.NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if r.duration != nil {
			elapsed := float64(time.Since(start).Microseconds()) / 1000
			r.duration.Record(ctx, elapsed, metric.WithAttributes(append(attrs, attribute.Bool("error", err != nil))...))
		}
	}
}

// Create inserts a new user into the database.
func (r *UserRepoSQL) Create(ctx context.Context, u *user.User) (_ *user.User, err error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}

	ctx, done := r.observe(ctx, "create")
	defer func() { done(err) }()

	model := UserSchema{
		Name:  u.Name,
		Email: u.Email,
		Age:   u.Age,
	}

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicateKey(err) {
			r.log.Warn("duplicate email on create")
			return nil, pkgerrors.NewValidationError("email", "email already exists")
		}
		r.log.Error("failed to create user in db", zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.log.Info("user created in db", zap.Int64("id", model.ID))
	return model.toDomain(), nil
}

// Update overwrites the supplied fields of an existing user and returns the result.
func (r *UserRepoSQL) Update(ctx context.Context, id int64, ch user.Changes) (_ *user.User, err error) {
	ctx, done := r.observe(ctx, "update")
	defer func() { done(err) }()

	var model UserSchema
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, r.lookupError(err, id)
	}

	if ch.Empty() {
		return model.toDomain(), nil
	}

	updates := make(map[string]any, 3)
	if ch.Name != nil {
		updates["name"] = *ch.Name
		model.Name = *ch.Name
	}
	if ch.Email != nil {
		updates["email"] = *ch.Email
		model.Email = *ch.Email
	}
	if ch.Age != nil {
		updates["age"] = *ch.Age
		model.Age = *ch.Age
	}

	if err := r.db.WithContext(ctx).Model(&UserSchema{ID: id}).Updates(updates).Error; err != nil {
		if isDuplicateKey(err) {
			r.log.Warn("duplicate email on update", zap.Int64("id", id))
			return nil, pkgerrors.NewValidationError("email", "email already exists")
		}
		r.log.Error("failed to update user in db", zap.Error(err), zap.Int64("id", id))
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	r.log.Info("user updated in db", zap.Int64("id", id))
	return model.toDomain(), nil
}

// Delete removes a user from the database by ID.
func (r *UserRepoSQL) Delete(ctx context.Context, id int64) (err error) {
	ctx, done := r.observe(ctx, "delete")
	defer func() { done(err) }()

	res := r.db.WithContext(ctx).Delete(&UserSchema{}, id)
	if res.Error != nil {
		r.log.Error("failed to delete user in db", zap.Error(res.Error), zap.Int64("id", id))
		return fmt.Errorf("failed to delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		r.log.Warn("user not found for delete", zap.Int64("id", id))
		return pkgerrors.NewNotFoundError("user", "User not found")
	}

	r.log.Info("user deleted in db", zap.Int64("id", id))
	return nil
}

// GetByID retrieves a user from the database by their unique ID.
func (r *UserRepoSQL) GetByID(ctx context.Context, id int64) (_ *user.User, err error) {
	ctx, done := r.observe(ctx, "get_by_id")
	defer func() { done(err) }()

	var model UserSchema
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, r.lookupError(err, id)
	}

	return model.toDomain(), nil
}

// GetByEmail retrieves a user from the database by their email address.
func (r *UserRepoSQL) GetByEmail(ctx context.Context, email string) (_ *user.User, err error) {
	ctx, done := r.observe(ctx, "get_by_email")
	defer func() { done(err) }()

	var model UserSchema
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Debug("user not found by email")
			return nil, pkgerrors.NewNotFoundError("user", "User not found")
		}
		r.log.Error("failed to get user by email from db", zap.Error(err))
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return model.toDomain(), nil
}

// List retrieves all users ordered by id.
func (r *UserRepoSQL) List(ctx context.Context) (_ []user.User, err error) {
	ctx, done := r.observe(ctx, "list")
	defer func() { done(err) }()

	var models []UserSchema
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		r.log.Error("failed to list users from db", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]user.User, len(models))
	for i, model := range models {
		users[i] = *model.toDomain()
	}

	return users, nil
}

// Ping checks that the database answers.
func (r *UserRepoSQL) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *UserRepoSQL) lookupError(err error, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Warn("user not found", zap.Int64("id", id))
		return pkgerrors.NewNotFoundError("user", "User not found")
	}
	r.log.Error("failed to get user from db", zap.Error(err), zap.Int64("id", id))
	return fmt.Errorf("failed to get user: %w", err)
}

// isDuplicateKey reports a unique constraint violation. GORM translates it
// when TranslateError is on; the message checks cover drivers opened without it.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
