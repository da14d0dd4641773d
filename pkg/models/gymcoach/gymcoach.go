// Package gymcoach declares the threat model of the GymCoach web
// application: an HTML/JS frontend served by a Node.js/Express backend
// with MongoDB Atlas as the application database.
package gymcoach

import (
	"github.com/threatcanvas/sdk/pkg/shared/classification"
	"github.com/threatcanvas/sdk/pkg/tm"
)

// New builds the GymCoach App threat model.
func New() *tm.Model {
	m := tm.NewModel("GymCoach App Threat Model")
	m.Description = "Web application for users and coaches to manage workouts, classes and progress. " +
		"Architecture: HTML/JS frontend served by a Node.js/Express backend with MongoDB Atlas."
	m.Ordered = true
	m.MergeResponses = true
	m.Assumptions = []string{
		"All external traffic to the application is over HTTPS through a cloud provider (e.g. Render/Heroku/Nginx).",
		"MongoDB Atlas is configured with authentication and network access control (IP allow-list / VPC peering).",
		"Passwords are stored hashed and never in plaintext.",
		"Admins/coaches use the same web interface but have elevated privileges managed by application roles.",
	}

	// Boundaries

	internet := m.Boundary("Internet")

	appBoundary := m.Boundary("Application Boundary") // Node.js server / hosting platform

	cloudDBBoundary := m.Boundary("MongoDB Atlas Boundary")

	// Actors

	user := m.Actor("End User")
	user.InBoundary = internet
	user.Description = "Gym app user that registers, logs in and manages personal workouts."

	coach := m.Actor("Coach / Admin")
	coach.InBoundary = internet
	coach.Description = "Coach with elevated permissions to manage users, exercises and classes."

	// Servers

	frontend := m.Server("Web Frontend (HTML/JS)")
	frontend.InBoundary = internet
	frontend.OS = "Browser"
	frontend.Description = "Static HTML/CSS/JS served to the user browser."
	frontend.Controls.SanitizesInput = false // mostly client-side validation
	frontend.Controls.EncodesOutput = true   // DOM/templating encodes output

	apiServer := m.Server("Node.js Express API")
	apiServer.InBoundary = appBoundary
	apiServer.OS = "Linux"
	apiServer.Description = "Node.js/Express backend defined in Server.js. " +
		"Handles routes /users, /exercises, /clases and renders views."
	apiServer.Controls.IsHardened = false
	apiServer.Controls.SanitizesInput = true // validation for body/query params
	apiServer.Controls.EncodesOutput = true
	apiServer.Controls.AuthorizesSource = true // session/JWT/role-based checks
	apiServer.SourceFiles = []string{
		"BACK/Controllers/Router.js",
		"BACK/Controllers/User.js",
		"BACK/Controllers/Exercises.js",
		"BACK/Controllers/Clases.js",
	}

	// Datastores

	appDB := m.Datastore("MongoDB Atlas - App Database")
	appDB.InBoundary = cloudDBBoundary
	appDB.OS = "MongoDB Atlas"
	appDB.Type = tm.DatastoreDocument
	appDB.Controls.IsHardened = true
	appDB.MaxClassification = classification.Restricted
	appDB.StoresPII = true // users, emails, maybe health-ish info
	appDB.StoresSensitiveData = true
	appDB.Port = 27017
	appDB.Protocol = "TLS over TCP"

	// Data assets

	credentials := m.Data("User Credentials")
	credentials.Description = "Email and password used to authenticate users and coaches."
	credentials.Classification = classification.Sensitive
	credentials.IsPII = true
	credentials.IsStored = true
	credentials.IsDestEncryptedAtRest = true // hashed passwords in DB

	profileData := m.Data("User Profile Data")
	profileData.Description = "User and coach profile data (name, email, role, BMI, etc.)."
	profileData.Classification = classification.Restricted
	profileData.IsPII = true
	profileData.IsStored = true
	profileData.IsDestEncryptedAtRest = true

	workoutData := m.Data("Workout and Routine Data")
	workoutData.Description = "Exercises, routines, goals, progress records."
	workoutData.Classification = classification.Sensitive
	workoutData.IsStored = true
	workoutData.IsDestEncryptedAtRest = true

	classSchedule := m.Data("Class Schedule Data")
	classSchedule.Description = "Classes, schedules, coach assignments."
	classSchedule.Classification = classification.Sensitive
	classSchedule.IsStored = true
	classSchedule.IsDestEncryptedAtRest = true

	sessionToken := m.Data("Session / Auth Token")
	sessionToken.Description = "Session cookie or JWT used to maintain authenticated sessions."
	sessionToken.Classification = classification.Sensitive

	// Dataflows: users <-> frontend

	userToFrontend := m.Dataflow(user, frontend, "HTTP(S) Requests from User")
	userToFrontend.Protocol = "HTTPS"
	userToFrontend.DstPort = 443

	frontendToUser := m.Dataflow(frontend, user, "HTML/JS/CSS Responses to User")
	frontendToUser.Protocol = "HTTPS"
	frontendToUser.DstPort = 443
	frontendToUser.IsResponse = true

	coachToFrontend := m.Dataflow(coach, frontend, "HTTP(S) Requests from Coach/Admin")
	coachToFrontend.Protocol = "HTTPS"
	coachToFrontend.DstPort = 443

	frontendToCoach := m.Dataflow(frontend, coach, "HTML/JS/CSS Responses to Coach/Admin")
	frontendToCoach.Protocol = "HTTPS"
	frontendToCoach.DstPort = 443
	frontendToCoach.IsResponse = true

	// Dataflows: frontend <-> API server

	frontendToAPI := m.Dataflow(frontend, apiServer, "API Calls (login, register, CRUD)")
	frontendToAPI.Protocol = "HTTPS"
	frontendToAPI.DstPort = 443
	frontendToAPI.TLS = tm.TLSv12
	frontendToAPI.Data = []*tm.Data{credentials, profileData, workoutData, classSchedule, sessionToken}
	frontendToAPI.UsesSessionTokens = true

	apiToFrontend := m.Dataflow(apiServer, frontend, "API Responses (JSON / HTML)")
	apiToFrontend.Protocol = "HTTPS"
	apiToFrontend.DstPort = 443
	apiToFrontend.TLS = tm.TLSv12
	apiToFrontend.Data = []*tm.Data{profileData, workoutData, classSchedule, sessionToken}
	apiToFrontend.IsResponse = true

	// Dataflows: API server <-> MongoDB Atlas

	storeFlow := func(source, sink tm.Node, name string, d *tm.Data, response bool) *tm.Dataflow {
		f := m.Dataflow(source, sink, name)
		f.Protocol = "TLS"
		f.DstPort = 27017
		f.Data = []*tm.Data{d}
		f.IsResponse = response
		return f
	}

	storeFlow(apiServer, appDB, "Store / Read Credentials", credentials, false)
	storeFlow(appDB, apiServer, "Return Credentials / Auth Data", credentials, true)
	storeFlow(apiServer, appDB, "Store / Read User Profiles", profileData, false)
	storeFlow(appDB, apiServer, "Return User Profiles", profileData, true)
	storeFlow(apiServer, appDB, "CRUD Workouts and Routines", workoutData, false)
	storeFlow(appDB, apiServer, "Return Workouts and Routines", workoutData, true)
	storeFlow(apiServer, appDB, "CRUD Classes and Schedules", classSchedule, false)
	storeFlow(appDB, apiServer, "Return Classes and Schedules", classSchedule, true)

	// The session token rides the API request and response legs.
	sessionToken.Traverses = []*tm.Dataflow{frontendToAPI, apiToFrontend}
	sessionToken.ProcessedBy = []tm.Node{apiServer}

	return m
}
