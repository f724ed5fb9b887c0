package store

import "context"

// GetAlert exposes the ledger lookup to the external test package.
func GetAlert(ctx context.Context, s *SQLiteStore, notificationID string) (*AlertRecord, error) {
	return s.getAlert(ctx, notificationID)
}
