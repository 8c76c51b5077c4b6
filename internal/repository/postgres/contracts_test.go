package postgres

import (
	"github.com/naitive/backend/internal/domain/lender"
	"github.com/naitive/backend/internal/domain/syncreq"
	"github.com/naitive/backend/internal/jobs"
	"github.com/naitive/backend/internal/notify"
)

var (
	_ lender.Repository       = (*LenderRepository)(nil)
	_ syncreq.Repository      = (*SyncRequestRepository)(nil)
	_ syncreq.LenderReader    = (*LenderRepository)(nil)
	_ syncreq.Store           = (*ResolutionStore)(nil)
	_ syncreq.Tx              = (*resolutionTx)(nil)
	_ syncreq.ActivityLog     = (*ActivityRepository)(nil)
	_ syncreq.AdminDirectory  = (*AdminDirectory)(nil)
	_ notify.OutboxRepository = (*OutboxRepository)(nil)
	_ jobs.OutboxRepository   = (*OutboxRepository)(nil)
)
