package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// DryRunLinkService returns fake links without calling any provider.
// Gate it behind PAYMENT_DRY_RUN; it must never serve real patients.
type DryRunLinkService struct {
	logger *logging.Logger
}

func NewDryRunLinkService(logger *logging.Logger) *DryRunLinkService {
	if logger == nil {
		logger = logging.Default()
	}
	return &DryRunLinkService{logger: logger}
}

func (s *DryRunLinkService) CreatePaymentLink(_ context.Context, req LinkRequest) (*Link, error) {
	if req.Amount <= 0 {
		return nil, ErrZeroAmount
	}
	fakeID := "plink_dryrun_" + uuid.New().String()[:8]
	s.logger.Info("payment dry run: skipping payment link creation",
		"patient_id", req.PatientID, "amount", req.Amount.String())
	return &Link{
		URL:        fmt.Sprintf("https://buy.stripe.com/dry-run/%s", fakeID),
		ProviderID: fakeID,
	}, nil
}
