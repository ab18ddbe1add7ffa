package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/colegio-smp/matricula-api/internal/gateway"
	"github.com/colegio-smp/matricula-api/internal/models"
	"github.com/colegio-smp/matricula-api/pkg/config"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
)

const listCachePrefix = "enrollments:list"

type studentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ExistsByUserID(ctx context.Context, userID string) (bool, error)
}

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindLatestByStudent(ctx context.Context, studentID string) (*models.Enrollment, error)
	ExistsPendingByStudent(ctx context.Context, studentID string) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	FindLatestByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error)
	CompleteByIntentID(ctx context.Context, intentID string) error
}

type fileStore interface {
	SaveUpload(subdir string, header *multipart.FileHeader) (string, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateStudentRequest describes the multipart payload for student creation.
type CreateStudentRequest struct {
	FullName  string `form:"nombre" validate:"required,max=100"`
	DNI       string `form:"dni" validate:"required,len=8,numeric"`
	BirthDate string `form:"fecha_nacimiento" validate:"required"`
	Grade     string `form:"grado" validate:"required,max=50"`
	Address   string `form:"direccion" validate:"required"`
}

// PaymentIntentResponse is returned after a successful enrollment creation.
type PaymentIntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// VerifyStudentResponse reports whether the user owns a student and, for a
// pending payment, the live client secret.
type VerifyStudentResponse struct {
	Exists       bool            `json:"exists"`
	Student      *models.Student `json:"estudiante,omitempty"`
	ClientSecret string          `json:"client_secret,omitempty"`
}

// CheckStudentResponse is the compact status projection.
type CheckStudentResponse struct {
	HasStudent       bool   `json:"has_student"`
	StudentID        string `json:"student_id,omitempty"`
	PaymentCompleted *bool  `json:"payment_completed,omitempty"`
	ClientSecret     string `json:"client_secret,omitempty"`
}

// ReviewEnrollmentRequest is the admin payload updating an enrollment status.
type ReviewEnrollmentRequest struct {
	Estado string `json:"estado" validate:"required"`
}

type cachedEnrollmentList struct {
	Items      []models.EnrollmentDetail `json:"items"`
	Pagination models.Pagination         `json:"pagination"`
}

// EnrollmentService orchestrates the enrollment and payment lifecycle.
type EnrollmentService struct {
	students    studentRepository
	enrollments enrollmentRepository
	payments    paymentRepository
	gateway     gateway.Client
	files       fileStore
	cache       cacheStore
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.EnrollmentConfig
	cacheTTL    time.Duration
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	students studentRepository,
	enrollments enrollmentRepository,
	payments paymentRepository,
	gw gateway.Client,
	files fileStore,
	cache cacheStore,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.EnrollmentConfig,
	cacheTTL time.Duration,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		students:    students,
		enrollments: enrollments,
		payments:    payments,
		gateway:     gw,
		files:       files,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		cacheTTL:    cacheTTL,
	}
}

// CreateStudentWithEnrollment registers the user's student, opens its single
// pending enrollment and requests a payment intent from the gateway.
func (s *EnrollmentService) CreateStudentWithEnrollment(ctx context.Context, userID string, req CreateStudentRequest, certificate *multipart.FileHeader) (*PaymentIntentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fecha_nacimiento must use YYYY-MM-DD")
	}

	exists, err := s.students.ExistsByUserID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "el usuario ya tiene un estudiante registrado")
	}

	student := &models.Student{
		UserID:    userID,
		FullName:  req.FullName,
		DNI:       req.DNI,
		BirthDate: birthDate,
		Grade:     req.Grade,
		Address:   req.Address,
	}
	if certificate != nil {
		path, err := s.files.SaveUpload("certificados", certificate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "certificado_estudios could not be stored")
		}
		student.CertificatePath = &path
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	enrollment := &models.Enrollment{
		StudentID: student.ID,
		Course:    s.defaultCourse(),
		Amount:    s.defaultAmount(),
		Status:    models.EnrollmentStatusPending,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	amountMinor := enrollment.Amount.Mul(decimal.NewFromInt(100)).IntPart()
	intent, err := s.gateway.CreateIntent(ctx, amountMinor, s.currency(), map[string]string{"matricula_id": enrollment.ID})
	if err != nil {
		// No compensating rollback: the enrollment stays Pendiente without a
		// payment and the status-query endpoints let the client recover.
		s.logger.Warn("gateway intent creation failed, enrollment left pending",
			zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, err.Error())
	}

	payment := &models.Payment{
		EnrollmentID: enrollment.ID,
		IntentID:     &intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		s.logger.Error("payment row write failed after gateway intent creation",
			zap.String("enrollment_id", enrollment.ID), zap.String("intent_id", intent.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist payment")
	}

	s.invalidateListCache(ctx)

	return &PaymentIntentResponse{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

// ConfirmPayment checks the gateway status of an intent and, when succeeded,
// flips the payment and its enrollment in a single atomic unit.
func (s *EnrollmentService) ConfirmPayment(ctx context.Context, intentID string) (string, error) {
	if _, err := s.payments.FindByIntentID(ctx, intentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "pago no encontrado")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, err.Error())
	}

	if intent.Status != gateway.IntentStatusSucceeded {
		s.metrics.RecordPaymentConfirmation("declined")
		return "", appErrors.Clone(appErrors.ErrPaymentDeclined, "El pago no se ha completado.")
	}

	if err := s.payments.CompleteByIntentID(ctx, intentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "pago no encontrado")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}

	s.metrics.RecordPaymentConfirmation("succeeded")
	s.invalidateListCache(ctx)

	return "Pago confirmado exitosamente.", nil
}

// VerifyStudent reports whether the user owns a student record. For a pending
// payment the client secret is re-fetched from the gateway so a stale cached
// value is never returned.
func (s *EnrollmentService) VerifyStudent(ctx context.Context, userID string) (*VerifyStudentResponse, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &VerifyStudentResponse{Exists: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	resp := &VerifyStudentResponse{Exists: true, Student: student}

	payment, err := s.latestPayment(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.Status != models.PaymentStatusPending || payment.IntentID == nil {
		return resp, nil
	}

	intent, err := s.gateway.RetrieveIntent(ctx, *payment.IntentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, err.Error())
	}
	resp.ClientSecret = intent.ClientSecret

	return resp, nil
}

// CheckStudent is the compact projection used by the onboarding flow.
func (s *EnrollmentService) CheckStudent(ctx context.Context, userID string) (*CheckStudentResponse, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &CheckStudentResponse{HasStudent: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	resp := &CheckStudentResponse{HasStudent: true, StudentID: student.ID}

	payment, err := s.latestPayment(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return resp, nil
	}

	completed := payment.Status == models.PaymentStatusCompleted
	resp.PaymentCompleted = &completed
	if !completed && payment.IntentID != nil {
		intent, err := s.gateway.RetrieveIntent(ctx, *payment.IntentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, err.Error())
		}
		resp.ClientSecret = intent.ClientSecret
	}

	return resp, nil
}

// List returns enrollments with pagination metadata for the admin panel,
// served through the Redis projection cache when available.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	key := fmt.Sprintf("%s:p%d:s%d:%s:%s", listCachePrefix, page, size, filter.Status, filter.StudentID)
	if s.cache != nil {
		var cached cachedEnrollmentList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			pagination := cached.Pagination
			return cached.Items, &pagination, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedEnrollmentList{Items: enrollments, Pagination: *pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache enrollment list", zap.Error(err))
		}
	}

	return enrollments, pagination, nil
}

// Review applies an admin decision to an enrollment.
func (s *EnrollmentService) Review(ctx context.Context, id string, req ReviewEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	status := models.EnrollmentStatus(req.Estado)
	if !status.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("estado %q no es válido", req.Estado))
	}

	if _, err := s.enrollments.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "matrícula no encontrada")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.enrollments.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	s.invalidateListCache(ctx)

	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) latestPayment(ctx context.Context, studentID string) (*models.Payment, error) {
	enrollment, err := s.enrollments.FindLatestByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	payment, err := s.payments.FindLatestByEnrollment(ctx, enrollment.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

func (s *EnrollmentService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, listCachePrefix+":*"); err != nil {
		s.logger.Warn("failed to invalidate enrollment list cache", zap.Error(err))
	}
}

func (s *EnrollmentService) defaultCourse() string {
	if s.cfg.DefaultCourse == "" {
		return "Curso Ejemplo"
	}
	return s.cfg.DefaultCourse
}

func (s *EnrollmentService) defaultAmount() decimal.Decimal {
	if amount, err := decimal.NewFromString(s.cfg.DefaultAmount); err == nil && amount.IsPositive() {
		return amount
	}
	return decimal.NewFromInt(100)
}

func (s *EnrollmentService) currency() string {
	if s.cfg.Currency == "" {
		return "usd"
	}
	return s.cfg.Currency
}
