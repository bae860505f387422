package instances

import (
	"context"
	"database/sql"
	"time"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const instanceColumns = "id, tenant_id, instance_name, api_endpoint, api_key, status, qr_code, last_webhook_received, created_at, updated_at, active"

// SqlInstanceStore persists instance rows in postgres.  Status and QR are
// written by a single UPDATE whenever they change together so concurrent
// readers never observe a new status with a stale QR.
type SqlInstanceStore struct {
	database *sql.DB
}

func NewSqlInstanceStore(database *sql.DB) *SqlInstanceStore {
	return &SqlInstanceStore{
		database: database,
	}
}

func (s *SqlInstanceStore) GetInstance(ctx context.Context, id domain.InstanceID) (*domain.Instance, error) {

	callDurationTimer := prometheus.NewTimer(sqlLookupDuration)
	defer callDurationTimer.ObserveDuration()

	row := s.database.QueryRowContext(ctx,
		"SELECT "+instanceColumns+" FROM instances WHERE id = $1", id.String())

	return scanInstance(row)
}

func (s *SqlInstanceStore) GetInstanceByName(ctx context.Context, name string) (*domain.Instance, error) {

	callDurationTimer := prometheus.NewTimer(sqlLookupDuration)
	defer callDurationTimer.ObserveDuration()

	row := s.database.QueryRowContext(ctx,
		"SELECT "+instanceColumns+" FROM instances WHERE instance_name = $1", name)

	return scanInstance(row)
}

func (s *SqlInstanceStore) GetInstancesByTenant(ctx context.Context, tenant domain.TenantID, offset int, limit int) ([]domain.Instance, int, error) {

	callDurationTimer := prometheus.NewTimer(sqlLookupDuration)
	defer callDurationTimer.ObserveDuration()

	var total int
	err := s.database.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM instances WHERE tenant_id = $1", tenant.String()).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.database.QueryContext(ctx,
		"SELECT "+instanceColumns+" FROM instances WHERE tenant_id = $1 ORDER BY created_at OFFSET $2 LIMIT $3",
		tenant.String(), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := collectInstances(rows)
	return results, total, err
}

func (s *SqlInstanceStore) GetAllInstances(ctx context.Context, offset int, limit int) ([]domain.Instance, int, error) {

	callDurationTimer := prometheus.NewTimer(sqlLookupDuration)
	defer callDurationTimer.ObserveDuration()

	var total int
	err := s.database.QueryRowContext(ctx, "SELECT COUNT(*) FROM instances").Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.database.QueryContext(ctx,
		"SELECT "+instanceColumns+" FROM instances ORDER BY created_at OFFSET $1 LIMIT $2",
		offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := collectInstances(rows)
	return results, total, err
}

func (s *SqlInstanceStore) CreateInstance(ctx context.Context, instance *domain.Instance) error {

	callDurationTimer := prometheus.NewTimer(sqlUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	if instance.ID == "" {
		instance.ID = domain.InstanceID(uuid.NewString())
	}
	if instance.Status == "" {
		instance.Status = domain.StatusDisconnected
	}

	now := time.Now().UTC()
	instance.CreatedAt = now
	instance.UpdatedAt = now
	instance.Active = true

	_, err := s.database.ExecContext(ctx,
		`INSERT INTO instances
		 (id, tenant_id, instance_name, api_endpoint, api_key, status, qr_code, created_at, updated_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8, true)`,
		instance.ID.String(), instance.TenantID.String(), instance.Name,
		instance.ApiEndpoint, instance.ApiKey, instance.Status,
		instance.CreatedAt, instance.UpdatedAt)

	return translateSqlError(err, instance.Name)
}

func (s *SqlInstanceStore) UpdateInstance(ctx context.Context, instance *domain.Instance) error {

	callDurationTimer := prometheus.NewTimer(sqlUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	instance.UpdatedAt = time.Now().UTC()

	result, err := s.database.ExecContext(ctx,
		`UPDATE instances
		 SET instance_name = $1, api_endpoint = $2, api_key = $3, active = $4, updated_at = $5
		 WHERE id = $6`,
		instance.Name, instance.ApiEndpoint, instance.ApiKey, instance.Active,
		instance.UpdatedAt, instance.ID.String())

	if err != nil {
		return translateSqlError(err, instance.Name)
	}

	return requireRowsAffected(result)
}

func (s *SqlInstanceStore) DeleteInstance(ctx context.Context, id domain.InstanceID) error {

	callDurationTimer := prometheus.NewTimer(sqlUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	result, err := s.database.ExecContext(ctx, "DELETE FROM instances WHERE id = $1", id.String())
	if err != nil {
		return err
	}

	return requireRowsAffected(result)
}

func (s *SqlInstanceStore) UpdateInstanceStatus(ctx context.Context, id domain.InstanceID, status string) error {

	callDurationTimer := prometheus.NewTimer(sqlUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	result, err := s.database.ExecContext(ctx,
		"UPDATE instances SET status = $1, updated_at = $2 WHERE id = $3",
		status, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}

	return requireRowsAffected(result)
}

func (s *SqlInstanceStore) UpdateInstanceQR(ctx context.Context, id domain.InstanceID, qrCode string) error {

	callDurationTimer := prometheus.NewTimer(sqlUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	result, err := s.database.ExecContext(ctx,
		"UPDATE instances SET qr_code = $1, updated_at = $2 WHERE id = $3",
		qrCode, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}

	return requireRowsAffected(result)
}

func (s *SqlInstanceStore) UpdateInstanceState(ctx context.Context, id domain.InstanceID, status string, qrCode string) error {

	callDurationTimer := prometheus.NewTimer(sqlUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	result, err := s.database.ExecContext(ctx,
		"UPDATE instances SET status = $1, qr_code = $2, updated_at = $3 WHERE id = $4",
		status, qrCode, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}

	return requireRowsAffected(result)
}

func (s *SqlInstanceStore) UpdateInstanceWebhookTimestamp(ctx context.Context, id domain.InstanceID, receivedAt time.Time) error {

	callDurationTimer := prometheus.NewTimer(sqlUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	result, err := s.database.ExecContext(ctx,
		"UPDATE instances SET last_webhook_received = $1, updated_at = $2 WHERE id = $3",
		receivedAt, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}

	return requireRowsAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*domain.Instance, error) {
	var instance domain.Instance
	var id, tenant string
	var lastWebhook sql.NullTime

	err := row.Scan(&id, &tenant, &instance.Name, &instance.ApiEndpoint, &instance.ApiKey,
		&instance.Status, &instance.QRCode, &lastWebhook,
		&instance.CreatedAt, &instance.UpdatedAt, &instance.Active)

	if err == sql.ErrNoRows {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}

	instance.ID = domain.InstanceID(id)
	instance.TenantID = domain.TenantID(tenant)
	if lastWebhook.Valid {
		instance.LastWebhookReceived = &lastWebhook.Time
	}

	return &instance, nil
}

func collectInstances(rows *sql.Rows) ([]domain.Instance, error) {
	results := []domain.Instance{}

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *instance)
	}

	return results, rows.Err()
}

func translateSqlError(err error, name string) error {
	if err == nil {
		return nil
	}

	if pqError, ok := err.(*pq.Error); ok && string(pqError.Code) == pgerrcode.UniqueViolation {
		logger.Log.WithFields(logrus.Fields{"instance": name}).Info("Rejecting duplicate instance name")
		return ErrDuplicateInstanceName
	}

	return err
}

func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}
