// Package catalog is the Catalog Metadata Store: the durable
// record of every provisioned PostgreSQL instance, its health history,
// and its audit trail. It is a plain pgx-backed Postgres store, entirely
// separate from the Event-History Store's schema.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/affandar/toygres/pkg/types"
)

// ErrDNSNameReserved is returned by Reserve when a different, still-live
// row already owns the requested dns_name.
var ErrDNSNameReserved = errors.New("dns name reserved by another instance")

// Store is the CMS persistence layer the Activity Catalog's CMS-* entries
// wrap. Every method except RecordHealthCheck is idempotent by the primary
// or natural key its caller supplies, matching the at-least-once semantics
// the rest of the control plane assumes of an activity; RecordHealthCheck
// appends a new row on every call.
type Store struct {
	db DBTX
}

// NewStore builds a Store over an already-connected pool or transaction.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// ReserveParams is the input to Reserve.
type ReserveParams struct {
	UserName              string
	K8sName               string
	DNSName               string
	PostgresVersion       string
	StorageSizeGB         int
	UseLoadBalancer       bool
	Namespace             string
	CreateOrchestrationID string
}

// Reserve inserts a new row in state "creating", or — if a row with the
// same k8s_name already exists and was written by the same orchestration
// — updates it in place so a replayed activity invocation is a no-op
// rather than a duplicate insert.
func (s *Store) Reserve(ctx context.Context, p ReserveParams) (string, error) {
	existing, err := s.getByK8sName(ctx, p.K8sName)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lookup existing instance: %w", err)
	}
	if err == nil {
		if existing.CreateOrchestrationID == p.CreateOrchestrationID {
			if _, err := s.db.Exec(ctx, `
				UPDATE instances SET dns_name = $2, postgres_version = $3, storage_size_gb = $4,
					use_load_balancer = $5, namespace = $6, updated_at = now()
				WHERE id = $1`,
				existing.ID, nullableDNSName(p.DNSName), p.PostgresVersion, p.StorageSizeGB,
				p.UseLoadBalancer, p.Namespace); err != nil {
				return "", fmt.Errorf("update reserved instance: %w", err)
			}
			return existing.ID, nil
		}
		return "", fmt.Errorf("k8s name %q already in use by a different orchestration", p.K8sName)
	}

	if p.DNSName != "" {
		owner, state, err := s.dnsNameOwner(ctx, p.DNSName)
		if err != nil {
			return "", fmt.Errorf("check dns name ownership: %w", err)
		}
		if owner != "" && (state == types.InstanceStateCreating || state == types.InstanceStateRunning) {
			return "", fmt.Errorf("%w: %s", ErrDNSNameReserved, owner)
		}
	}

	var id string
	err = s.db.QueryRow(ctx, `
		INSERT INTO instances (
			user_name, k8s_name, dns_name, state, health, postgres_version,
			storage_size_gb, use_load_balancer, namespace, create_orchestration_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING id`,
		p.UserName, p.K8sName, nullableDNSName(p.DNSName), types.InstanceStateCreating,
		types.HealthUnknown, p.PostgresVersion, p.StorageSizeGB, p.UseLoadBalancer,
		p.Namespace, p.CreateOrchestrationID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert instance: %w", err)
	}
	return id, nil
}

// UpdateStateParams is the input to UpdateState.
type UpdateStateParams struct {
	K8sName             string
	State               types.InstanceState
	IPConnectionString  *string
	DNSConnectionString *string
	ExternalIP          *string
	DeleteOrchestrationID *string
	Message             *string
}

// UpdateState moves a row to a new state and stamps any of the optional
// fields supplied. If the state actually changed, it appends an
// InstanceEvent audit row. The lookup, the UPDATE and the audit INSERT are
// separate statements on s.db: they share a transaction only when the
// Store was built over a pgx.Tx, and the row is not locked between the
// lookup and the UPDATE. A missing record is reported via
// updated=false, not an error, since the caller (an activity) must treat
// "already deleted" as success.
func (s *Store) UpdateState(ctx context.Context, p UpdateStateParams) (updated bool, err error) {
	row, err := s.getByK8sName(ctx, p.K8sName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup instance for state update: %w", err)
	}

	prevState := row.State
	_, err = s.db.Exec(ctx, `
		UPDATE instances SET
			state = $2,
			ip_connection_string = COALESCE($3, ip_connection_string),
			dns_connection_string = COALESCE($4, dns_connection_string),
			external_ip = COALESCE($5, external_ip),
			delete_orchestration_id = COALESCE($6, delete_orchestration_id),
			message = COALESCE($7, message),
			updated_at = now()
		WHERE id = $1`,
		row.ID, p.State, p.IPConnectionString, p.DNSConnectionString, p.ExternalIP,
		p.DeleteOrchestrationID, p.Message)
	if err != nil {
		return false, fmt.Errorf("update instance state: %w", err)
	}

	if prevState != p.State {
		message := ""
		if p.Message != nil {
			message = *p.Message
		}
		if _, err := s.db.Exec(ctx, `
			INSERT INTO instance_events (instance_id, event_type, old_state, new_state, message, created_at)
			VALUES ($1, 'state_change', $2, $3, $4, now())`,
			row.ID, prevState, p.State, message); err != nil {
			return false, fmt.Errorf("record state-change event: %w", err)
		}
	}
	return true, nil
}

// FreeDNS renames the row's dns_name to the "__deleted_" sentinel so the
// unique reservation is released without destroying the original value
// for audit purposes. A no-op (freed=false) if already sentinel-prefixed
// or already null.
func (s *Store) FreeDNS(ctx context.Context, k8sName string) (freed bool, err error) {
	row, err := s.getByK8sName(ctx, k8sName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup instance for dns free: %w", err)
	}
	if row.DNSName == "" || strings.HasPrefix(row.DNSName, types.DeletedDNSPrefix) {
		return false, nil
	}
	_, err = s.db.Exec(ctx, `UPDATE instances SET dns_name = $2, updated_at = now() WHERE id = $1`,
		row.ID, types.DeletedDNSPrefix+row.DNSName)
	if err != nil {
		return false, fmt.Errorf("free dns name: %w", err)
	}
	return true, nil
}

// GetByK8sName looks up an instance by its Kubernetes resource name.
// found=false (not an error) when no row exists, matching the "CMS:
// Lookup" activity's contract.
func (s *Store) GetByK8sName(ctx context.Context, k8sName string) (inst types.Instance, found bool, err error) {
	row, err := s.getByK8sName(ctx, k8sName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Instance{}, false, nil
		}
		return types.Instance{}, false, fmt.Errorf("lookup instance by k8s name: %w", err)
	}
	return row, true, nil
}

// GetConnection returns the full row (the same result as GetByK8sName),
// used by the InstanceActor to read the connection fields and decide
// whether it has enough to probe.
func (s *Store) GetConnection(ctx context.Context, k8sName string) (inst types.Instance, found bool, err error) {
	return s.GetByK8sName(ctx, k8sName)
}

// RecordHealthCheck appends an immutable health observation.
func (s *Store) RecordHealthCheck(ctx context.Context, instanceID string, check types.HealthCheck) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO instance_health_checks (instance_id, status, postgres_version, response_time_ms, error_message, checked_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		instanceID, check.Status, check.PostgresVersion, check.ResponseTimeMS, check.ErrorMessage)
	if err != nil {
		return fmt.Errorf("record health check: %w", err)
	}
	return nil
}

// UpdateHealth stamps the row's last-observed health.
func (s *Store) UpdateHealth(ctx context.Context, instanceID string, health types.InstanceHealth) error {
	_, err := s.db.Exec(ctx, `UPDATE instances SET health = $2, updated_at = now() WHERE id = $1`, instanceID, health)
	if err != nil {
		return fmt.Errorf("update instance health: %w", err)
	}
	return nil
}

// RecordActorID stamps the InstanceActor's orchestration id on the row.
func (s *Store) RecordActorID(ctx context.Context, k8sName, actorOrchestrationID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE instances SET instance_actor_orchestration_id = $2, updated_at = now() WHERE k8s_name = $1`,
		k8sName, actorOrchestrationID)
	if err != nil {
		return fmt.Errorf("record actor orchestration id: %w", err)
	}
	return nil
}

// DeleteRecord removes the row entirely. Idempotent: deleting an absent
// row is success.
func (s *Store) DeleteRecord(ctx context.Context, k8sName string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM instances WHERE k8s_name = $1`, k8sName); err != nil {
		return fmt.Errorf("delete instance record: %w", err)
	}
	return nil
}

// List returns every catalog row, newest first — backs the Client
// Surface's ClusterSummary (and so the `instance cluster-summary` CLI).
func (s *Store) List(ctx context.Context) ([]types.Instance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+instanceColumns+` FROM instances ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []types.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance row: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance rows: %w", err)
	}
	return out, nil
}

func (s *Store) dnsNameOwner(ctx context.Context, dnsName string) (ownerK8sName string, state types.InstanceState, err error) {
	row := s.db.QueryRow(ctx, `SELECT k8s_name, state FROM instances WHERE dns_name = $1`, dnsName)
	err = row.Scan(&ownerK8sName, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return ownerK8sName, state, nil
}

const instanceColumns = `id, user_name, k8s_name, COALESCE(dns_name, ''), state, health,
	postgres_version, storage_size_gb, use_load_balancer, namespace,
	COALESCE(ip_connection_string, ''), COALESCE(dns_connection_string, ''), COALESCE(external_ip, ''),
	COALESCE(create_orchestration_id, ''), COALESCE(delete_orchestration_id, ''), COALESCE(instance_actor_orchestration_id, ''),
	COALESCE(message, ''), created_at, updated_at`

func (s *Store) getByK8sName(ctx context.Context, k8sName string) (types.Instance, error) {
	row := s.db.QueryRow(ctx, `SELECT `+instanceColumns+` FROM instances WHERE k8s_name = $1`, k8sName)
	return scanInstance(row)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInstance(row scannable) (types.Instance, error) {
	var inst types.Instance
	err := row.Scan(
		&inst.ID, &inst.UserName, &inst.K8sName, &inst.DNSName, &inst.State, &inst.Health,
		&inst.PostgresVersion, &inst.StorageSizeGB, &inst.UseLoadBalancer, &inst.Namespace,
		&inst.IPConnectionString, &inst.DNSConnectionString, &inst.ExternalIP,
		&inst.CreateOrchestrationID, &inst.DeleteOrchestrationID, &inst.InstanceActorOrchestrationID,
		&inst.Message, &inst.CreatedAt, &inst.UpdatedAt,
	)
	return inst, err
}

func nullableDNSName(dnsName string) any {
	if dnsName == "" {
		return nil
	}
	return dnsName
}
