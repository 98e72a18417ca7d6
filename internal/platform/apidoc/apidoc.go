// Package apidoc は API ドキュメント（Swagger 2.0）を登録し、/swagger で配信する
package apidoc

import (
	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const InstanceName = "smartid"

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/api/v1",
	Schemes:          []string{"https"},
	Title:            "smartid campus gate API",
	Description:      "Student ID registry and entry/exit attendance ledger.",
	InfoInstanceName: InstanceName,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// RegisterRoutes: GET /swagger/index.html, /swagger/doc.json
func RegisterRoutes(r gin.IRoutes) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.InstanceName(InstanceName)))
}
