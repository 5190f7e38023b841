package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// record persists the consultation and detail rows. The write is best-effort:
// the debit has already committed, so a storage failure here is logged loudly
// but never surfaced to the caller.
func (s *Service) record(ctx context.Context, userID snowflake.ID, result *consultationdomain.Result, priced []pricedType) {
	typeIDs := make(map[string]snowflake.ID, len(priced))
	for _, entry := range priced {
		typeIDs[entry.requestCode] = entry.cost.TypeID
	}

	consultation := &consultationdomain.Consultation{
		ID:                  result.ID,
		UserID:              userID,
		Subject:             result.Subject,
		Status:              result.Status,
		TotalCostMinor:      result.TotalCostMinor,
		LatencyMS:           result.LatencyMS,
		CacheUsed:           result.CacheUsed,
		CreditTransactionID: result.CreditTransactionID,
	}

	details := make([]consultationdomain.ConsultationDetail, 0, len(result.Types))
	for _, typeResult := range result.Types {
		if typeResult.Skipped {
			continue
		}
		detail := consultationdomain.ConsultationDetail{
			ID:                 s.genID.Generate(),
			ConsultationID:     result.ID,
			ConsultationTypeID: typeIDs[typeResult.Code],
			TypeCode:           typeResult.Code,
			Success:            typeResult.Success,
			ErrorMessage:       typeResult.Error,
		}
		if typeResult.Charged {
			detail.CostMinor = typeResult.CostMinor
		}
		if len(typeResult.Payload) > 0 {
			detail.Payload = datatypes.JSON(typeResult.Payload)
		}
		details = append(details, detail)
	}

	if err := s.repo.Record(ctx, s.db, consultation, details); err != nil {
		s.log.Error("failed to record consultation after debit",
			zap.String("consultation_id", result.ID.String()),
			zap.String("user_id", userID.String()),
			zap.Int64("total_cost_minor", result.TotalCostMinor),
			zap.Error(err),
		)
	}
}
