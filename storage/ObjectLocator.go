package storage

import (
	"fmt"
	"net/url"
	"strings"

	"lib-cloud-sas-go/util"
)

// ObjectLocator identifies one object. ObjectName may contain "/".
type ObjectLocator struct {
	ContainerName string
	ObjectName    string
}

func (l ObjectLocator) String() string {
	return l.ContainerName + "/" + l.ObjectName
}

func (l ObjectLocator) validate() error {
	if strings.TrimSpace(l.ContainerName) == "" {
		return newError(KindInvalidArgument, "container name must not be empty", nil)
	}
	if strings.TrimSpace(l.ObjectName) == "" {
		return newError(KindInvalidArgument, "object name must not be empty", nil)
	}
	return nil
}

// ParseObjectURL splits a full object URL such as
// https://account.blob.core.windows.net/container/dir/file.bin into its
// container (first path segment) and object name (the remaining segments).
func ParseObjectURL(objectURL string) (ObjectLocator, error) {
	if strings.TrimSpace(objectURL) == "" {
		return ObjectLocator{}, newError(KindInvalidUrlFormat, "object URL must not be empty", nil)
	}
	u, err := url.Parse(objectURL)
	if err != nil {
		return ObjectLocator{}, newError(KindInvalidUrlFormat, "unable to parse object URL", err)
	}
	segments := util.PathSegments(u.Path)
	if len(segments) < 2 {
		return ObjectLocator{}, newError(KindInvalidUrlFormat,
			fmt.Sprintf("invalid object URL %q: expected https://<account-host>/<container>/<object>", objectURL), nil)
	}
	return ObjectLocator{
		ContainerName: segments[0],
		ObjectName:    strings.Join(segments[1:], "/"),
	}, nil
}
