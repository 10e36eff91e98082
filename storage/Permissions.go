package storage

import (
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"lib-cloud-sas-go/util"
)

// Permissions is a set of object-level access rights granted by a signed URL.
type Permissions uint8

const (
	PermissionRead Permissions = 1 << iota
	PermissionAdd
	PermissionCreate
	PermissionWrite
	PermissionDelete
	PermissionList
	PermissionTag
)

// SAS letter order; String and ParsePermissions rely on it.
var permissionLetters = []struct {
	flag   Permissions
	letter byte
	name   string
}{
	{PermissionRead, 'r', "read"},
	{PermissionAdd, 'a', "add"},
	{PermissionCreate, 'c', "create"},
	{PermissionWrite, 'w', "write"},
	{PermissionDelete, 'd', "delete"},
	{PermissionList, 'l', "list"},
	{PermissionTag, 't', "tag"},
}

func (p Permissions) Has(flag Permissions) bool {
	return p&flag == flag
}

func (p Permissions) String() string {
	var b strings.Builder
	for _, l := range permissionLetters {
		if p.Has(l.flag) {
			b.WriteByte(l.letter)
		}
	}
	return b.String()
}

func (p Permissions) sasPermissions() sas.BlobPermissions {
	return sas.BlobPermissions{
		Read:   p.Has(PermissionRead),
		Add:    p.Has(PermissionAdd),
		Create: p.Has(PermissionCreate),
		Write:  p.Has(PermissionWrite),
		Delete: p.Has(PermissionDelete),
		List:   p.Has(PermissionList),
		Tag:    p.Has(PermissionTag),
	}
}

// blobPermissions renders p in the letter order the blob service signs.
func (p Permissions) blobPermissions() string {
	permissions := p.sasPermissions()
	return permissions.String()
}

// ParsePermissions accepts either SAS letters ("rw") or a comma separated list
// of names ("read, write").
func ParsePermissions(s string) (Permissions, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, newError(KindInvalidArgument, "permissions must not be empty", nil)
	}
	var p Permissions
	for _, part := range strings.Split(s, ",") {
		flag, ok := permissionByName(util.NormalizeString(part))
		if !ok && !strings.Contains(s, ",") {
			if parsed, letters := parseLetters(s); letters {
				return parsed, nil
			}
		}
		if !ok {
			return 0, newError(KindInvalidArgument, fmt.Sprintf("unknown permission %q", part), nil)
		}
		p |= flag
	}
	return p, nil
}

func permissionByName(name string) (Permissions, bool) {
	for _, l := range permissionLetters {
		if l.name == name {
			return l.flag, true
		}
	}
	return 0, false
}

func parseLetters(s string) (Permissions, bool) {
	var p Permissions
	for i := 0; i < len(s); i++ {
		found := false
		for _, l := range permissionLetters {
			if l.letter == s[i] {
				p |= l.flag
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return p, true
}
