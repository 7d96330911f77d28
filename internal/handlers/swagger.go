package handlers

// @title Gemini Relay API
// @version 1.0
// @description Relays prompts to Google Gemini with the API key injected server-side.
// @description Successful responses carry the generated text of the first candidate.

// @contact.name API Support
// @contact.url https://github.com/your-org/gemini-relay-api

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8081
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Only required when the relay runs with a shared secret. Type "Bearer" followed by a space and a token from tokengen.

// @tag.name relay
// @tag.description Prompt relay operations
