package api

import (
	"net/http"

	"hermannm.dev/gridbase/permission"
)

// Returns translation keys for describing every permission action and action prefix.
func (api API) GetPermissionActions(res http.ResponseWriter, req *http.Request) {
	sendJSON(res, permission.NewCatalog())
}
