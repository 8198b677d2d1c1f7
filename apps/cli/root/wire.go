package root

import (
	migratecmd "github.com/materialidadmx/materialidad-saas/apps/cli/cmd/migrate"
	tenantcmd "github.com/materialidadmx/materialidad-saas/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(migratecmd.Command())
	Root().AddCommand(tenantcmd.Command())
}
