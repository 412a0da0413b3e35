package router

// User-facing texts.
const (
	WelcomeText = "Привет! Я бот, который поможет узнать текущую погоду в любом городе. " +
		"Просто отправьте мне название города, и я расскажу, какая там погода сейчас! " +
		"Нажмите /help, чтобы узнать больше."

	HelpText = "Используйте следующие команды:\n" +
		"/start - " + StartDescription + "\n" +
		"/help - " + HelpDescription + "\n\n" +
		"Также вы можете просто отправить название города, чтобы узнать его погоду."

	NotFoundText = "Город не найден. Попробуйте снова."

	TransportErrorText = "Произошла ошибка при получении данных о погоде."
)

// Command descriptions shown in the client's command menu.
const (
	StartDescription = "Начать работу с ботом"
	HelpDescription  = "Справка о боте"
)

// Reply keyboard button labels attached to the welcome message.
const (
	ButtonHelp    = "Справка"
	ButtonWeather = "Погода"
)

// WelcomeKeyboard returns a fresh copy of the keyboard sent with the welcome message.
func WelcomeKeyboard() [][]string {
	return [][]string{
		{ButtonHelp},
		{ButtonWeather},
	}
}
