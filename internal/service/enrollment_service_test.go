package service

import (
	"context"
	"database/sql"
	"errors"
	"mime/multipart"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-smp/matricula-api/internal/gateway"
	"github.com/colegio-smp/matricula-api/internal/models"
	"github.com/colegio-smp/matricula-api/pkg/config"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]models.Student // keyed by user ID
	created  *models.Student
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "student-new"
	}
	m.students[student.UserID] = *student
	m.created = student
	return nil
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	if s, ok := m.students[userID]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByUserID(ctx context.Context, userID string) (bool, error) {
	_, ok := m.students[userID]
	return ok, nil
}

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	byStudent   map[string]string
	status      map[string]models.EnrollmentStatus
	listItems   []models.EnrollmentDetail
	listTotal   int
	listCalls   int
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
		m.byStudent = make(map[string]string)
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.byStudent[enrollment.StudentID] = enrollment.ID
	return nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindLatestByStudent(ctx context.Context, studentID string) (*models.Enrollment, error) {
	if id, ok := m.byStudent[studentID]; ok {
		e := m.enrollments[id]
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsPendingByStudent(ctx context.Context, studentID string) (bool, error) {
	id, ok := m.byStudent[studentID]
	if !ok {
		return false, nil
	}
	return m.enrollments[id].Status == models.EnrollmentStatusPending, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	m.listCalls++
	return m.listItems, m.listTotal, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

type mockPaymentRepo struct {
	payments     map[string]models.Payment // keyed by intent ID
	byEnrollment map[string]string
	completed    []string
	completeErr  error
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	if m.payments == nil {
		m.payments = make(map[string]models.Payment)
		m.byEnrollment = make(map[string]string)
	}
	if payment.ID == "" {
		payment.ID = "pay-new"
	}
	if payment.IntentID != nil {
		m.payments[*payment.IntentID] = *payment
		m.byEnrollment[payment.EnrollmentID] = *payment.IntentID
	}
	return nil
}

func (m *mockPaymentRepo) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	if p, ok := m.payments[intentID]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) FindLatestByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error) {
	if intentID, ok := m.byEnrollment[enrollmentID]; ok {
		p := m.payments[intentID]
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) CompleteByIntentID(ctx context.Context, intentID string) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	p, ok := m.payments[intentID]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = models.PaymentStatusCompleted
	m.payments[intentID] = p
	m.completed = append(m.completed, intentID)
	return nil
}

type mockGateway struct {
	createCalls   []createCall
	retrieveCalls []string
	intent        *gateway.Intent
	retrieved     *gateway.Intent
	createErr     error
	retrieveErr   error
}

type createCall struct {
	amountMinor int64
	currency    string
	metadata    map[string]string
}

func (m *mockGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*gateway.Intent, error) {
	m.createCalls = append(m.createCalls, createCall{amountMinor: amountMinor, currency: currency, metadata: metadata})
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.intent != nil {
		return m.intent, nil
	}
	return &gateway.Intent{ID: "pi_123", ClientSecret: "pi_123_secret_abc", Status: "requires_payment_method"}, nil
}

func (m *mockGateway) RetrieveIntent(ctx context.Context, id string) (*gateway.Intent, error) {
	m.retrieveCalls = append(m.retrieveCalls, id)
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	if m.retrieved != nil {
		return m.retrieved, nil
	}
	return &gateway.Intent{ID: id, ClientSecret: id + "_secret_live", Status: "requires_payment_method"}, nil
}

type mockFileStore struct {
	saved []string
	err   error
}

func (m *mockFileStore) SaveUpload(subdir string, header *multipart.FileHeader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	path := subdir + "/" + header.Filename
	m.saved = append(m.saved, path)
	return path, nil
}

type mockCache struct {
	store      map[string][]byte
	getCalls   int
	setCalls   int
	invalidate int
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.getCalls++
	return appErrors.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.setCalls++
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidate++
	return nil
}

func newEnrollmentServiceForTest(
	students *mockStudentRepo,
	enrollments *mockEnrollmentRepo,
	payments *mockPaymentRepo,
	gw *mockGateway,
	cache *mockCache,
) *EnrollmentService {
	cfg := config.EnrollmentConfig{DefaultCourse: "Curso Ejemplo", DefaultAmount: "100.00", Currency: "usd"}
	var cacheStore cacheStore
	if cache != nil {
		cacheStore = cache
	}
	return NewEnrollmentService(students, enrollments, payments, gw, &mockFileStore{}, cacheStore, nil, nil, nil, cfg, time.Minute)
}

func validCreateRequest() CreateStudentRequest {
	return CreateStudentRequest{
		FullName:  "Juan Perez",
		DNI:       "12345678",
		BirthDate: "2012-03-15",
		Grade:     "Primero",
		Address:   "Av. Siempre Viva 123",
	}
}

func TestCreateStudentWithEnrollment(t *testing.T) {
	students := &mockStudentRepo{}
	enrollments := &mockEnrollmentRepo{}
	payments := &mockPaymentRepo{}
	gw := &mockGateway{}
	svc := newEnrollmentServiceForTest(students, enrollments, payments, gw, nil)

	res, err := svc.CreateStudentWithEnrollment(context.Background(), "user-1", validCreateRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret_abc", res.ClientSecret)
	assert.Equal(t, "pi_123", res.PaymentIntentID)

	require.NotNil(t, students.created)
	assert.Equal(t, "Juan Perez", students.created.FullName)
	assert.Equal(t, time.Date(2012, 3, 15, 0, 0, 0, 0, time.UTC), students.created.BirthDate)

	enrollment := enrollments.enrollments["enr-new"]
	assert.Equal(t, "Curso Ejemplo", enrollment.Course)
	assert.True(t, enrollment.Amount.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)

	require.Len(t, gw.createCalls, 1)
	assert.Equal(t, int64(10000), gw.createCalls[0].amountMinor)
	assert.Equal(t, "usd", gw.createCalls[0].currency)
	assert.Equal(t, "enr-new", gw.createCalls[0].metadata["matricula_id"])

	payment := payments.payments["pi_123"]
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, "enr-new", payment.EnrollmentID)
}

func TestCreateStudentWithEnrollmentDuplicate(t *testing.T) {
	students := &mockStudentRepo{students: map[string]models.Student{
		"user-1": {ID: "student-1", UserID: "user-1"},
	}}
	svc := newEnrollmentServiceForTest(students, &mockEnrollmentRepo{}, &mockPaymentRepo{}, &mockGateway{}, nil)

	_, err := svc.CreateStudentWithEnrollment(context.Background(), "user-1", validCreateRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateStudentWithEnrollmentBadBirthDate(t *testing.T) {
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, &mockPaymentRepo{}, &mockGateway{}, nil)

	req := validCreateRequest()
	req.BirthDate = "15/03/2012"
	_, err := svc.CreateStudentWithEnrollment(context.Background(), "user-1", req, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateStudentWithEnrollmentGatewayFailure(t *testing.T) {
	students := &mockStudentRepo{}
	enrollments := &mockEnrollmentRepo{}
	payments := &mockPaymentRepo{}
	gw := &mockGateway{createErr: errors.New("connection refused")}
	svc := newEnrollmentServiceForTest(students, enrollments, payments, gw, nil)

	_, err := svc.CreateStudentWithEnrollment(context.Background(), "user-1", validCreateRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGateway.Code, appErrors.FromError(err).Code)

	// Enrollment stays Pendiente without a payment so the client can recover.
	enrollment := enrollments.enrollments["enr-new"]
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.Empty(t, payments.payments)
}

func TestConfirmPaymentSucceeded(t *testing.T) {
	intentID := "pi_123"
	payments := &mockPaymentRepo{
		payments: map[string]models.Payment{
			intentID: {ID: "pay-1", EnrollmentID: "enr-1", IntentID: &intentID, Status: models.PaymentStatusPending},
		},
		byEnrollment: map[string]string{"enr-1": intentID},
	}
	gw := &mockGateway{retrieved: &gateway.Intent{ID: intentID, Status: gateway.IntentStatusSucceeded}}
	cache := &mockCache{}
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, payments, gw, cache)

	msg, err := svc.ConfirmPayment(context.Background(), intentID)
	require.NoError(t, err)
	assert.Equal(t, "Pago confirmado exitosamente.", msg)
	assert.Equal(t, []string{intentID}, payments.completed)
	assert.Equal(t, 1, cache.invalidate)
}

func TestConfirmPaymentNotSucceeded(t *testing.T) {
	intentID := "pi_123"
	payments := &mockPaymentRepo{
		payments: map[string]models.Payment{
			intentID: {ID: "pay-1", EnrollmentID: "enr-1", IntentID: &intentID, Status: models.PaymentStatusPending},
		},
		byEnrollment: map[string]string{"enr-1": intentID},
	}
	gw := &mockGateway{retrieved: &gateway.Intent{ID: intentID, Status: "requires_payment_method"}}
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, payments, gw, nil)

	_, err := svc.ConfirmPayment(context.Background(), intentID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPaymentDeclined.Code, appErr.Code)
	assert.Equal(t, "El pago no se ha completado.", appErr.Message)
	assert.Empty(t, payments.completed)
}

func TestConfirmPaymentUnknownIntent(t *testing.T) {
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, &mockPaymentRepo{}, &mockGateway{}, nil)

	_, err := svc.ConfirmPayment(context.Background(), "pi_missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestConfirmPaymentIdempotentOnRepeat(t *testing.T) {
	intentID := "pi_123"
	payments := &mockPaymentRepo{
		payments: map[string]models.Payment{
			intentID: {ID: "pay-1", EnrollmentID: "enr-1", IntentID: &intentID, Status: models.PaymentStatusCompleted},
		},
		byEnrollment: map[string]string{"enr-1": intentID},
	}
	gw := &mockGateway{retrieved: &gateway.Intent{ID: intentID, Status: gateway.IntentStatusSucceeded}}
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, payments, gw, nil)

	msg, err := svc.ConfirmPayment(context.Background(), intentID)
	require.NoError(t, err)
	assert.Equal(t, "Pago confirmado exitosamente.", msg)
}

func TestVerifyStudentNone(t *testing.T) {
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, &mockPaymentRepo{}, &mockGateway{}, nil)

	res, err := svc.VerifyStudent(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.Nil(t, res.Student)
}

func TestVerifyStudentPendingFetchesLiveSecret(t *testing.T) {
	intentID := "pi_123"
	students := &mockStudentRepo{students: map[string]models.Student{
		"user-1": {ID: "student-1", UserID: "user-1", FullName: "Juan Perez"},
	}}
	enrollments := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusPending}},
		byStudent:   map[string]string{"student-1": "enr-1"},
	}
	payments := &mockPaymentRepo{
		payments: map[string]models.Payment{
			intentID: {ID: "pay-1", EnrollmentID: "enr-1", IntentID: &intentID, ClientSecret: "stale_secret", Status: models.PaymentStatusPending},
		},
		byEnrollment: map[string]string{"enr-1": intentID},
	}
	gw := &mockGateway{}
	svc := newEnrollmentServiceForTest(students, enrollments, payments, gw, nil)

	res, err := svc.VerifyStudent(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	require.NotNil(t, res.Student)
	assert.Equal(t, "Juan Perez", res.Student.FullName)
	// The stored secret is never returned; the gateway is asked again.
	assert.Equal(t, "pi_123_secret_live", res.ClientSecret)
	assert.Equal(t, []string{intentID}, gw.retrieveCalls)
}

func TestVerifyStudentCompletedPaymentSkipsGateway(t *testing.T) {
	intentID := "pi_123"
	students := &mockStudentRepo{students: map[string]models.Student{
		"user-1": {ID: "student-1", UserID: "user-1"},
	}}
	enrollments := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusPaid}},
		byStudent:   map[string]string{"student-1": "enr-1"},
	}
	payments := &mockPaymentRepo{
		payments: map[string]models.Payment{
			intentID: {ID: "pay-1", EnrollmentID: "enr-1", IntentID: &intentID, Status: models.PaymentStatusCompleted},
		},
		byEnrollment: map[string]string{"enr-1": intentID},
	}
	gw := &mockGateway{}
	svc := newEnrollmentServiceForTest(students, enrollments, payments, gw, nil)

	res, err := svc.VerifyStudent(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Empty(t, res.ClientSecret)
	assert.Empty(t, gw.retrieveCalls)
}

func TestCheckStudentStates(t *testing.T) {
	t.Run("no student", func(t *testing.T) {
		svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, &mockPaymentRepo{}, &mockGateway{}, nil)

		res, err := svc.CheckStudent(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, res.HasStudent)
		assert.Nil(t, res.PaymentCompleted)
	})

	t.Run("student without payment", func(t *testing.T) {
		students := &mockStudentRepo{students: map[string]models.Student{
			"user-1": {ID: "student-1", UserID: "user-1"},
		}}
		svc := newEnrollmentServiceForTest(students, &mockEnrollmentRepo{}, &mockPaymentRepo{}, &mockGateway{}, nil)

		res, err := svc.CheckStudent(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, res.HasStudent)
		assert.Equal(t, "student-1", res.StudentID)
		assert.Nil(t, res.PaymentCompleted)
	})

	t.Run("pending payment refreshes secret", func(t *testing.T) {
		intentID := "pi_123"
		students := &mockStudentRepo{students: map[string]models.Student{
			"user-1": {ID: "student-1", UserID: "user-1"},
		}}
		enrollments := &mockEnrollmentRepo{
			enrollments: map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusPending}},
			byStudent:   map[string]string{"student-1": "enr-1"},
		}
		payments := &mockPaymentRepo{
			payments: map[string]models.Payment{
				intentID: {ID: "pay-1", EnrollmentID: "enr-1", IntentID: &intentID, Status: models.PaymentStatusPending},
			},
			byEnrollment: map[string]string{"enr-1": intentID},
		}
		gw := &mockGateway{}
		svc := newEnrollmentServiceForTest(students, enrollments, payments, gw, nil)

		res, err := svc.CheckStudent(context.Background(), "user-1")
		require.NoError(t, err)
		require.NotNil(t, res.PaymentCompleted)
		assert.False(t, *res.PaymentCompleted)
		assert.Equal(t, "pi_123_secret_live", res.ClientSecret)
	})

	t.Run("completed payment", func(t *testing.T) {
		intentID := "pi_123"
		students := &mockStudentRepo{students: map[string]models.Student{
			"user-1": {ID: "student-1", UserID: "user-1"},
		}}
		enrollments := &mockEnrollmentRepo{
			enrollments: map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusPaid}},
			byStudent:   map[string]string{"student-1": "enr-1"},
		}
		payments := &mockPaymentRepo{
			payments: map[string]models.Payment{
				intentID: {ID: "pay-1", EnrollmentID: "enr-1", IntentID: &intentID, Status: models.PaymentStatusCompleted},
			},
			byEnrollment: map[string]string{"enr-1": intentID},
		}
		gw := &mockGateway{}
		svc := newEnrollmentServiceForTest(students, enrollments, payments, gw, nil)

		res, err := svc.CheckStudent(context.Background(), "user-1")
		require.NoError(t, err)
		require.NotNil(t, res.PaymentCompleted)
		assert.True(t, *res.PaymentCompleted)
		assert.Empty(t, res.ClientSecret)
		assert.Empty(t, gw.retrieveCalls)
	})
}

func TestListCachesProjection(t *testing.T) {
	enrollments := &mockEnrollmentRepo{
		listItems: []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "enr-1"}, StudentName: "Juan Perez"}},
		listTotal: 1,
	}
	cache := &mockCache{}
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, enrollments, &mockPaymentRepo{}, &mockGateway{}, cache)

	items, pagination, err := svc.List(context.Background(), models.EnrollmentFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, cache.getCalls)
	assert.Equal(t, 1, cache.setCalls)
	assert.Equal(t, 1, enrollments.listCalls)
}

func TestReviewEnrollment(t *testing.T) {
	enrollments := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusPaid}},
		byStudent:   map[string]string{"student-1": "enr-1"},
	}
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, enrollments, &mockPaymentRepo{}, &mockGateway{}, nil)

	updated, err := svc.Review(context.Background(), "enr-1", ReviewEnrollmentRequest{Estado: "Aprobado"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, updated.Status)
}

func TestReviewEnrollmentRejectsUnknownStatus(t *testing.T) {
	enrollments := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusPending}},
	}
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, enrollments, &mockPaymentRepo{}, &mockGateway{}, nil)

	_, err := svc.Review(context.Background(), "enr-1", ReviewEnrollmentRequest{Estado: "Cancelado"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, enrollments.status)
}

func TestReviewEnrollmentNotFound(t *testing.T) {
	svc := newEnrollmentServiceForTest(&mockStudentRepo{}, &mockEnrollmentRepo{}, &mockPaymentRepo{}, &mockGateway{}, nil)

	_, err := svc.Review(context.Background(), "enr-missing", ReviewEnrollmentRequest{Estado: "Aprobado"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
