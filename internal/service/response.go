package service

import "bitespeed-identity/internal/models"

// buildResponse assembles the consolidated contact from the final cluster rows
// (oldest first, any inserted row last) and its observed values
func buildResponse(primaryID int64, rows []*models.Contact, observed *ObservedSet) *models.IdentifyResponse {
	secondaryContactIDs := []int64{}
	for _, c := range rows {
		if c.ID != primaryID {
			secondaryContactIDs = append(secondaryContactIDs, c.ID)
		}
	}

	return &models.IdentifyResponse{
		Contact: models.ContactResponse{
			PrimaryContactID:    primaryID,
			Emails:              observed.Emails,
			PhoneNumbers:        observed.PhoneNumbers,
			SecondaryContactIDs: secondaryContactIDs,
		},
	}
}
