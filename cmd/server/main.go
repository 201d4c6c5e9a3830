package main

import "authportal/internal/app"

// @title        authportal API
// @version      1.0
// @description  Registration, login, email verification and password reset.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	app.Run()
}
