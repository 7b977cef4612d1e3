// Package permissions enumerates the fine-grained permissions understood by
// the platform. The catalog is fixed at compile time; permissions are never
// created at runtime.
package permissions

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Incident permissions.
const (
	IncidentView   = "incident.view"
	IncidentCreate = "incident.create"
	IncidentUpdate = "incident.update"
	IncidentDelete = "incident.delete"
	IncidentExport = "incident.export"
	IncidentAssign = "incident.assign"
)

// User management permissions.
const (
	UserView          = "user.view"
	UserCreate        = "user.create"
	UserUpdate        = "user.update"
	UserDelete        = "user.delete"
	UserManageRoles   = "user.manage_roles"
	UserResetPassword = "user.reset_password"
)

// Group management permissions.
const (
	GroupView          = "group.view"
	GroupCreate        = "group.create"
	GroupUpdate        = "group.update"
	GroupDelete        = "group.delete"
	GroupManageMembers = "group.manage_members"
	GroupManageRoles   = "group.manage_roles"
)

// Evidence permissions.
const (
	EvidenceView     = "evidence.view"
	EvidenceUpload   = "evidence.upload"
	EvidenceDelete   = "evidence.delete"
	EvidenceDownload = "evidence.download"
)

// Export permissions.
const (
	ExportCSV      = "export.csv"
	ExportPDF      = "export.pdf"
	ExportCombined = "export.combined"
)

// Role management permissions.
const (
	RoleView   = "role.view"
	RoleCreate = "role.create"
	RoleUpdate = "role.update"
	RoleDelete = "role.delete"
)

// System administration permissions.
const (
	SystemAdmin  = "system.admin"
	SystemConfig = "system.config"
	SystemAudit  = "system.audit"
)

var catalog = []string{
	IncidentView, IncidentCreate, IncidentUpdate, IncidentDelete, IncidentExport, IncidentAssign,
	UserView, UserCreate, UserUpdate, UserDelete, UserManageRoles, UserResetPassword,
	GroupView, GroupCreate, GroupUpdate, GroupDelete, GroupManageMembers, GroupManageRoles,
	EvidenceView, EvidenceUpload, EvidenceDelete, EvidenceDownload,
	ExportCSV, ExportPDF, ExportCombined,
	RoleView, RoleCreate, RoleUpdate, RoleDelete,
	SystemAdmin, SystemConfig, SystemAudit,
}

var known = func() map[string]struct{} {
	m := make(map[string]struct{}, len(catalog))
	for _, p := range catalog {
		m[p] = struct{}{}
	}
	return m
}()

// All returns the complete permission catalog, sorted.
func All() []string {
	out := make([]string, len(catalog))
	copy(out, catalog)
	sort.Strings(out)
	return out
}

// Known reports whether p is part of the catalog.
func Known(p string) bool {
	_, ok := known[p]
	return ok
}

// Area returns the resource area a permission belongs to ("incident",
// "group", ...), or an empty string for malformed identifiers.
func Area(p string) string {
	if i := strings.IndexByte(p, '.'); i > 0 {
		return p[:i]
	}
	return ""
}

var titler = cases.Title(language.English)

// Describe returns a human-readable label for a permission identifier,
// e.g. "group.manage_members" becomes "Group: Manage Members".
func Describe(p string) string {
	area, action, ok := strings.Cut(p, ".")
	if !ok {
		return titler.String(p)
	}
	action = strings.ReplaceAll(action, "_", " ")
	return titler.String(area) + ": " + titler.String(action)
}
