package roles

import (
	"context"

	"github.com/opsrelay/opsrelay/internal/permissions"
)

// SeedSystemRoles creates the predefined system roles when absent. Called
// once at process start; running it again is a no-op.
func (s *Service) SeedSystemRoles(ctx context.Context) error {
	seeds := []struct {
		name         string
		description  string
		perms        []string
		unrestricted bool
	}{
		{
			name:        NameViewer,
			description: "Read-only viewer",
			perms: []string{
				permissions.IncidentView,
				permissions.EvidenceView,
			},
		},
		{
			name:        NameResponder,
			description: "Incident responder",
			perms: []string{
				permissions.IncidentView,
				permissions.IncidentUpdate,
				permissions.EvidenceView,
				permissions.EvidenceUpload,
				permissions.EvidenceDownload,
			},
		},
		{
			name:        NameManager,
			description: "Manager with incident management capabilities",
			perms: []string{
				permissions.IncidentView,
				permissions.IncidentCreate,
				permissions.IncidentUpdate,
				permissions.IncidentAssign,
				permissions.IncidentExport,
				permissions.UserView,
				permissions.GroupView,
				permissions.EvidenceView,
				permissions.EvidenceUpload,
				permissions.EvidenceDownload,
				permissions.ExportCSV,
				permissions.ExportPDF,
				permissions.ExportCombined,
			},
		},
		{
			name:        NameAdmin,
			description: "Administrator with full system access",
			perms:       permissions.All(),
		},
		{
			name:         NameSystemAdmin,
			description:  "Unrestricted platform administrator",
			perms:        permissions.All(),
			unrestricted: true,
		},
	}

	for _, seed := range seeds {
		if err := s.EnsureSystemRole(ctx, seed.name, seed.description, seed.perms, seed.unrestricted); err != nil {
			return err
		}
	}
	return nil
}
